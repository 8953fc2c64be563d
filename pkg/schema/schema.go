// Package schema defines tables, ranges and column-family layout: the
// structural data model of spec.md §3 shared by every range-server
// component.
package schema

import (
	"bytes"
	"fmt"
	"strings"
)

// EndRowSentinel marks the final range of an ordinary table (spec.md §3).
var EndRowSentinel = []byte{0xFF, 0xFF}

// MetadataRootEndRowSentinel marks the end-row of the root range of the
// METADATA table, distinct from EndRowSentinel.
var MetadataRootEndRowSentinel = []byte{0xFF, 0xFE}

// TableIdentifier is a stable opaque table id plus schema generation.
type TableIdentifier struct {
	ID         string
	Generation uint32
}

// IsSystem reports whether the table id names a system table ("0/" prefix).
func (t TableIdentifier) IsSystem() bool { return strings.HasPrefix(t.ID, "0/") }

// IsMetadata reports whether the table id is the root METADATA table.
func (t TableIdentifier) IsMetadata() bool { return t.ID == "0/0" }

// String renders "<id>:<generation>" for logs and RSML payloads.
func (t TableIdentifier) String() string { return fmt.Sprintf("%s:%d", t.ID, t.Generation) }

// RangeSpec is a half-open-on-the-left, closed-on-the-right row interval:
// start-row exclusive, end-row inclusive.
type RangeSpec struct {
	StartRow []byte // nil means "no lower bound"
	EndRow   []byte
}

// IsFinal reports whether this is the final range of its table.
func (r RangeSpec) IsFinal() bool { return bytes.Equal(r.EndRow, EndRowSentinel) }

// Contains reports whether row falls in (StartRow, EndRow].
func (r RangeSpec) Contains(row []byte) bool {
	if r.StartRow != nil && bytes.Compare(row, r.StartRow) <= 0 {
		return false
	}
	if !r.IsFinal() && bytes.Compare(row, r.EndRow) > 0 {
		return false
	}
	return true
}

// String renders "(start,end]" for logs.
func (r RangeSpec) String() string {
	start := "-inf"
	if r.StartRow != nil {
		start = string(r.StartRow)
	}
	return fmt.Sprintf("(%s,%s]", start, r.EndRow)
}

// QualifiedRange is a table id plus a range spec; ordering is lexicographic
// by table id then by range (spec.md §3 "Qualified range").
type QualifiedRange struct {
	Table TableIdentifier
	Range RangeSpec
}

// Compare orders two qualified ranges by table id, then generation, then
// range end-row.
func Compare(a, b QualifiedRange) int {
	if c := strings.Compare(a.Table.ID, b.Table.ID); c != 0 {
		return c
	}
	if a.Table.Generation != b.Table.Generation {
		if a.Table.Generation < b.Table.Generation {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Range.EndRow, b.Range.EndRow)
}

// ColumnFamily describes one vertical stripe of a table's columns.
type ColumnFamily struct {
	ID              uint8
	Name            string
	TTLNanos        int64 // 0 means no TTL
	MaxVersions     uint32
	Deleted         bool
	ValueIndex      bool
	QualifierIndex  bool
	AccessGroupName string
}

// AccessGroupSchema lists the column families stored together and the
// storage policy knobs that apply to them (spec.md §4.5).
type AccessGroupSchema struct {
	Name            string
	ColumnFamilies  []string // family names belonging to this group
	InMemory        bool
	BlockSizeBytes  uint32
	Compressor      string
	BloomFilterMode string // "none" | "row" | "row+cf" | "row+cf+cq"
}

// Schema is the full table schema: families plus their access-group
// partitioning.
type Schema struct {
	MaxColumnFamilyID uint8
	Families          []ColumnFamily
	AccessGroups       []AccessGroupSchema
}

// FamilyByID returns the column family with the given id, if present.
func (s *Schema) FamilyByID(id uint8) (ColumnFamily, bool) {
	for _, f := range s.Families {
		if f.ID == id && !f.Deleted {
			return f, true
		}
	}
	return ColumnFamily{}, false
}

// FamilyByName returns the column family with the given name, if present.
func (s *Schema) FamilyByName(name string) (ColumnFamily, bool) {
	for _, f := range s.Families {
		if f.Name == name && !f.Deleted {
			return f, true
		}
	}
	return ColumnFamily{}, false
}

// Validate checks the invariant that every non-deleted family belongs to
// exactly one access group.
func (s *Schema) Validate() error {
	owner := make(map[string]string, len(s.Families))
	for _, f := range s.Families {
		if f.Deleted {
			continue
		}
		found := false
		for _, ag := range s.AccessGroups {
			for _, name := range ag.ColumnFamilies {
				if name == f.Name {
					if prev, ok := owner[f.Name]; ok && prev != ag.Name {
						return fmt.Errorf("schema: family %q belongs to both access groups %q and %q", f.Name, prev, ag.Name)
					}
					owner[f.Name] = ag.Name
					found = true
				}
			}
		}
		if !found {
			return fmt.Errorf("schema: family %q does not belong to any access group", f.Name)
		}
	}
	return nil
}

// AccessGroupForFamily returns the access group name owning family id.
func (s *Schema) AccessGroupForFamily(id uint8) (string, bool) {
	f, ok := s.FamilyByID(id)
	if !ok {
		return "", false
	}
	for _, ag := range s.AccessGroups {
		for _, name := range ag.ColumnFamilies {
			if name == f.Name {
				return ag.Name, true
			}
		}
	}
	return "", false
}
