package rangekit

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rangekit/rangekit/pkg/schema"
)

// schemaDocument is the on-disk JSON shape rangectl reads a table
// schema from (rangectl load range --schema path.json). It mirrors
// schema.Schema except that family TTLs are given in seconds (converted
// to nanoseconds on load) and families carry no deleted flag.
type schemaDocument struct {
	MaxColumnFamilyID uint8                     `json:"max_column_family_id"`
	Families          []schemaFamilyDocument    `json:"families"`
	AccessGroups      []schemaAccessGroupDoc    `json:"access_groups"`
}

type schemaFamilyDocument struct {
	ID              uint8  `json:"id"`
	Name            string `json:"name"`
	TTLSeconds      int64  `json:"ttl_seconds"`
	MaxVersions     uint32 `json:"max_versions"`
	ValueIndex      bool   `json:"value_index"`
	QualifierIndex  bool   `json:"qualifier_index"`
	AccessGroupName string `json:"access_group"`
}

type schemaAccessGroupDoc struct {
	Name            string   `json:"name"`
	ColumnFamilies  []string `json:"column_families"`
	InMemory        bool     `json:"in_memory"`
	BlockSizeBytes  uint32   `json:"block_size_bytes"`
	Compressor      string   `json:"compressor"`
	BloomFilterMode string   `json:"bloom_filter_mode"`
}

// LoadSchemaFile reads and validates a table schema from a JSON file.
func LoadSchemaFile(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rangekit: read schema %s: %w", path, err)
	}

	var doc schemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rangekit: parse schema %s: %w", path, err)
	}

	sch := &schema.Schema{MaxColumnFamilyID: doc.MaxColumnFamilyID}
	for _, f := range doc.Families {
		sch.Families = append(sch.Families, schema.ColumnFamily{
			ID:              f.ID,
			Name:            f.Name,
			TTLNanos:        f.TTLSeconds * int64(1e9),
			MaxVersions:     f.MaxVersions,
			ValueIndex:      f.ValueIndex,
			QualifierIndex:  f.QualifierIndex,
			AccessGroupName: f.AccessGroupName,
		})
	}
	for _, g := range doc.AccessGroups {
		sch.AccessGroups = append(sch.AccessGroups, schema.AccessGroupSchema{
			Name:            g.Name,
			ColumnFamilies:  g.ColumnFamilies,
			InMemory:        g.InMemory,
			BlockSizeBytes:  g.BlockSizeBytes,
			Compressor:      g.Compressor,
			BloomFilterMode: g.BloomFilterMode,
		})
	}

	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("rangekit: schema %s: %w", path, err)
	}
	return sch, nil
}
