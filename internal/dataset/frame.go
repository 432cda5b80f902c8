package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType tags a column with the relational type its values map to.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeReal
	TypeBoolean
	TypeTimestamp
)

// SQLType returns the SQLite column type for the tag.
func (t ColumnType) SQLType() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// String returns the tag name persisted in session metadata dtypes.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// ParseColumnType maps a persisted tag name back to its ColumnType.
// Unknown tags decay to TypeText.
func ParseColumnType(s string) ColumnType {
	switch s {
	case "integer":
		return TypeInteger
	case "real":
		return TypeReal
	case "boolean":
		return TypeBoolean
	case "timestamp":
		return TypeTimestamp
	default:
		return TypeText
	}
}

// Column is one entry of a frame's ordered schema.
type Column struct {
	Name string
	Type ColumnType
}

// Frame is a tabular dataset: an ordered schema plus row-major cell text.
// Cell values are kept as raw strings; typed interpretation is a function
// of the column's declared type.
type Frame struct {
	Columns []Column
	Records [][]string
}

// RowCount returns the number of data rows.
func (f *Frame) RowCount() int { return len(f.Records) }

// ColumnCount returns the number of columns.
func (f *Frame) ColumnCount() int { return len(f.Columns) }

// ColumnNames returns the column names in schema order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// DTypes returns the column name to type-tag map stored in session metadata.
func (f *Frame) DTypes() map[string]string {
	m := make(map[string]string, len(f.Columns))
	for _, c := range f.Columns {
		m[c.Name] = c.Type.String()
	}
	return m
}

// Schema returns the schema as loaded into the query engine: column names
// sanitized, types unchanged. Names that collide after sanitization are not
// deduplicated; the engine applies last-write-wins.
func (f *Frame) Schema() []Column {
	out := make([]Column, len(f.Columns))
	for i, c := range f.Columns {
		out[i] = Column{Name: SanitizeName(c.Name), Type: c.Type}
	}
	return out
}

// Validate checks that every record has exactly one cell per column.
func (f *Frame) Validate() error {
	if len(f.Columns) == 0 {
		return fmt.Errorf("frame has no columns")
	}
	for i, rec := range f.Records {
		if len(rec) != len(f.Columns) {
			return fmt.Errorf("record %d has %d cells, want %d", i, len(rec), len(f.Columns))
		}
	}
	return nil
}

// SanitizeName replaces every rune that is not a letter, digit or underscore
// with an underscore, matching what the query engine loads as column names.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// timestampLayouts are the formats recognized during type inference.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InferColumnType inspects every non-empty value of a column and returns the
// narrowest type all of them parse as: INTEGER, then REAL, then BOOLEAN, then
// TIMESTAMP, else TEXT. A column with no non-empty values is TEXT.
func InferColumnType(values []string) ColumnType {
	isInt, isReal, isBool, isTime := true, true, true, true
	seen := false

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isReal {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
			}
		}
		if isBool {
			switch strings.ToLower(v) {
			case "true", "false":
			default:
				isBool = false
			}
		}
		if isTime {
			if !parsesAsTimestamp(v) {
				isTime = false
			}
		}
		if !isInt && !isReal && !isBool && !isTime {
			return TypeText
		}
	}

	switch {
	case !seen:
		return TypeText
	case isInt:
		return TypeInteger
	case isReal:
		return TypeReal
	case isBool:
		return TypeBoolean
	case isTime:
		return TypeTimestamp
	default:
		return TypeText
	}
}

func parsesAsTimestamp(v string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// InferTypes re-derives every column's type from its literal values. Used when
// a frame is reconstructed from the delimited-text snapshot, where the original
// type tags are gone. The result can diverge from the binary snapshot's typing
// (a text column of digit strings comes back numeric).
func (f *Frame) InferTypes() {
	for i := range f.Columns {
		values := make([]string, 0, len(f.Records))
		for _, rec := range f.Records {
			values = append(values, rec[i])
		}
		f.Columns[i].Type = InferColumnType(values)
	}
}
