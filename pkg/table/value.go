// Package table implements the in-memory, transactional, triggered
// table store (C2): typed columns, a single sparse composite index per
// table, a narrow DML subset over a boolean where-expression tree, four
// trigger kinds, and nestable transactions backed by a reverse-
// executable change log.
package table

import (
	"fmt"
	"strings"
)

// ColumnType is the typed-column discriminant.
type ColumnType int

const (
	ColString ColumnType = iota
	ColInt32
	ColUint32
	ColDouble
	ColBlob
)

// ColumnDef declares one typed column. MaxLen applies only to ColString.
type ColumnDef struct {
	Name   string
	Type   ColumnType
	MaxLen int
}

// Value is a tagged union over the column types, including blob, which
// the attribute engine's Value does not carry.
type Value struct {
	Type ColumnType
	Str  string
	I32  int32
	U32  uint32
	Dbl  float64
	Blob []byte
}

func (v Value) encode() string {
	switch v.Type {
	case ColString:
		return "s:" + v.Str
	case ColInt32:
		return fmt.Sprintf("i:%d", v.I32)
	case ColUint32:
		return fmt.Sprintf("u:%010d", v.U32)
	case ColDouble:
		return fmt.Sprintf("d:%024.10f", v.Dbl)
	case ColBlob:
		return "b:" + string(v.Blob)
	default:
		return ""
	}
}

func (v Value) equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ColString:
		return v.Str == o.Str
	case ColInt32:
		return v.I32 == o.I32
	case ColUint32:
		return v.U32 == o.U32
	case ColDouble:
		return v.Dbl == o.Dbl
	case ColBlob:
		return string(v.Blob) == string(o.Blob)
	}
	return false
}

// compare returns -1, 0, 1 for v<o, v==o, v>o. Blob supports only
// equality; a non-equal blob comparison returns a stable but otherwise
// meaningless ordering (byte-wise), which is enough for index purposes.
func (v Value) compare(o Value) int {
	switch v.Type {
	case ColString:
		return strings.Compare(v.Str, o.Str)
	case ColInt32:
		switch {
		case v.I32 < o.I32:
			return -1
		case v.I32 > o.I32:
			return 1
		default:
			return 0
		}
	case ColUint32:
		switch {
		case v.U32 < o.U32:
			return -1
		case v.U32 > o.U32:
			return 1
		default:
			return 0
		}
	case ColDouble:
		switch {
		case v.Dbl < o.Dbl:
			return -1
		case v.Dbl > o.Dbl:
			return 1
		default:
			return 0
		}
	case ColBlob:
		return strings.Compare(string(v.Blob), string(o.Blob))
	}
	return 0
}

// Row is a single record, column-aligned with the owning table's schema.
type Row []Value

func (r Row) clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}
