package scan

import "regexp"

// ColumnPredicateOp is the bitmask describing which comparisons a
// ColumnPredicate applies (spec.md §6.4).
type ColumnPredicateOp uint32

const (
	OpValueExact  ColumnPredicateOp = 1 << 0
	OpValuePrefix ColumnPredicateOp = 1 << 1
	OpValueRegex  ColumnPredicateOp = 1 << 2

	OpQualifierExact  ColumnPredicateOp = 1 << 8
	OpQualifierPrefix ColumnPredicateOp = 1 << 9
	OpQualifierRegex  ColumnPredicateOp = 1 << 10

	opValueMask = OpValueExact | OpValuePrefix | OpValueRegex
)

// ColumnPredicate matches a specific (column family, qualifier) pair
// with a value and/or qualifier comparison. A predicate with no
// value-op bit set is an "exists" check: it matches any value as long
// as the qualifier condition (if any) holds.
type ColumnPredicate struct {
	FamilyID  uint8
	Qualifier string
	Op        ColumnPredicateOp
	Value     []byte

	valueRe     *regexp.Regexp
	qualifierRe *regexp.Regexp
}

// Compile precompiles any regex components of the predicate. Must be
// called once before the predicate is used by a Spec.
func (p *ColumnPredicate) Compile() error {
	var err error
	if p.Op&OpValueRegex != 0 {
		p.valueRe, err = regexp.Compile(string(p.Value))
		if err != nil {
			return err
		}
	}
	if p.Op&OpQualifierRegex != 0 {
		p.qualifierRe, err = regexp.Compile(p.Qualifier)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *ColumnPredicate) matchesQualifier(qualifier []byte) bool {
	switch {
	case p.Op&OpQualifierExact != 0:
		return string(qualifier) == p.Qualifier
	case p.Op&OpQualifierPrefix != 0:
		return len(qualifier) >= len(p.Qualifier) && string(qualifier[:len(p.Qualifier)]) == p.Qualifier
	case p.Op&OpQualifierRegex != 0:
		return p.qualifierRe != nil && p.qualifierRe.Match(qualifier)
	default:
		return p.Qualifier == "" || string(qualifier) == p.Qualifier
	}
}

func (p *ColumnPredicate) matchesValue(value []byte) bool {
	switch {
	case p.Op&OpValueExact != 0:
		return string(value) == string(p.Value)
	case p.Op&OpValuePrefix != 0:
		return len(value) >= len(p.Value) && string(value[:len(p.Value)]) == string(p.Value)
	case p.Op&OpValueRegex != 0:
		return p.valueRe != nil && p.valueRe.Match(value)
	default:
		return true // exists check: qualifier match is enough
	}
}

// RowInterval is one endpoint-inclusive/exclusive row range.
type RowInterval struct {
	Start, End                   []byte
	StartInclusive, EndInclusive bool
}

// Spec is a fully resolved scan specification (spec.md §6.4).
type Spec struct {
	RowLimit, CellLimit, CellLimitPerFamily int
	RowOffset, CellOffset                  int
	MaxVersions                            int
	StartTime, EndTime                     int64 // 0,0 means unbounded
	ReturnDeletes, KeysOnly                bool
	ScanAndFilterRows, DoNotCache          bool
	RowRegex, ValueRegex                   *regexp.Regexp
	RowIntervals                           []RowInterval
	Columns                                map[uint8]bool // nil means all families
	ColumnPredicates                       []ColumnPredicate
	// FamilyTTLNanos maps column family id to its configured TTL, 0
	// meaning no expiry, for the scanner's TTL check (spec.md §4.7).
	FamilyTTLNanos map[uint8]int64
	// Now is the reference time for TTL evaluation; callers stamp it
	// once per scan rather than calling a clock inside the scanner.
	Now int64
}

// includesFamily reports whether cf is part of the requested column set.
func (s *Spec) includesFamily(cf uint8) bool {
	if s.Columns == nil {
		return true
	}
	return s.Columns[cf]
}

func (s *Spec) withinTimeInterval(ts int64) bool {
	if s.StartTime == 0 && s.EndTime == 0 {
		return true
	}
	if s.StartTime != 0 && ts < s.StartTime {
		return false
	}
	if s.EndTime != 0 && ts >= s.EndTime {
		return false
	}
	return true
}

func (s *Spec) expired(cf uint8, ts int64) bool {
	ttl, ok := s.FamilyTTLNanos[cf]
	if !ok || ttl <= 0 {
		return false
	}
	return s.Now-ts > ttl
}

func (s *Spec) withinRowIntervals(row []byte) bool {
	if len(s.RowIntervals) == 0 {
		return true
	}
	for _, iv := range s.RowIntervals {
		if rowWithin(row, iv) {
			return true
		}
	}
	return false
}

func rowWithin(row []byte, iv RowInterval) bool {
	if iv.Start != nil {
		c := compareBytes(row, iv.Start)
		if c < 0 || (c == 0 && !iv.StartInclusive) {
			return false
		}
	}
	if iv.End != nil {
		c := compareBytes(row, iv.End)
		if c > 0 || (c == 0 && !iv.EndInclusive) {
			return false
		}
	}
	return true
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}
