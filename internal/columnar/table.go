package columnar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/wal-cas/internal/errs"
)

// ColumnType is the logical type of a Table column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeInt64  ColumnType = "int64"
	TypeFloat  ColumnType = "float64"
	TypeBool   ColumnType = "bool"
)

// Column is one column of a Table, holding one typed slice of values
// depending on Type. Exactly one of Strings/Ints/Floats/Bools is
// populated, each with the same length.
type Column struct {
	Name    string
	Type    ColumnType
	Strings []string
	Ints    []int64
	Floats  []float64
	Bools   []bool
}

// Len returns the column's row count.
func (c Column) Len() int {
	switch c.Type {
	case TypeString:
		return len(c.Strings)
	case TypeInt64:
		return len(c.Ints)
	case TypeFloat:
		return len(c.Floats)
	case TypeBool:
		return len(c.Bools)
	default:
		return 0
	}
}

// ValueAt returns the value at row i as an interface{}, for use by the
// filter evaluator and projection.
func (c Column) ValueAt(i int) interface{} {
	switch c.Type {
	case TypeString:
		return c.Strings[i]
	case TypeInt64:
		return c.Ints[i]
	case TypeFloat:
		return c.Floats[i]
	case TypeBool:
		return c.Bools[i]
	default:
		return nil
	}
}

// stringAt renders the value at row i as a string, used for partition key
// derivation and deterministic row ordering.
func (c Column) stringAt(i int) string {
	switch c.Type {
	case TypeString:
		return c.Strings[i]
	case TypeInt64:
		return strconv.FormatInt(c.Ints[i], 10)
	case TypeFloat:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case TypeBool:
		return strconv.FormatBool(c.Bools[i])
	default:
		return ""
	}
}

// Table is the canonical in-memory columnar representation the Bridge
// normalizes every stored dataset into.
type Table struct {
	Columns []Column
	NumRows int
}

// ColumnNames returns the table's column names in declared order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// column returns the column named name, or false if absent.
func (t *Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks that every column has the table's row count and that
// column names are unique.
func (t *Table) Validate() error {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			return errs.Newf(errs.SchemaMismatch, "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.Len() != t.NumRows {
			return errs.Newf(errs.SchemaMismatch, "column %q has %d rows, table has %d", c.Name, c.Len(), t.NumRows)
		}
	}
	return nil
}

// SchemaFingerprint returns a stable hash of the table's logical schema
// (column name/type pairs, in declared order), independent of row data or
// row count.
func (t *Table) SchemaFingerprint() string {
	h := sha256.New()
	for _, c := range t.Columns {
		fmt.Fprintf(h, "%s:%s;", c.Name, c.Type)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Project returns a new Table containing only the named columns, in the
// order requested. An empty or nil columns slice returns the full table.
func (t *Table) Project(columns []string) (*Table, error) {
	if len(columns) == 0 {
		return t, nil
	}
	out := &Table{NumRows: t.NumRows}
	for _, name := range columns {
		c, ok := t.column(name)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "unknown column %q", name)
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}

// FilterOp is a comparison operator usable in a Filter or the query
// engine's WHERE clause.
type FilterOp string

const (
	OpEQ FilterOp = "="
	OpNE FilterOp = "!="
	OpLT FilterOp = "<"
	OpLE FilterOp = "<="
	OpGT FilterOp = ">"
	OpGE FilterOp = ">="
)

// Filter is a single-column predicate applied to a Table for filter
// pushdown.
type Filter struct {
	Column string
	Op     FilterOp
	Value  interface{}
}

// Apply returns a new Table containing only the rows matching every
// filter, preserving column order and types.
func (t *Table) Apply(filters []Filter) (*Table, error) {
	if len(filters) == 0 {
		return t, nil
	}
	keep := make([]bool, t.NumRows)
	for i := range keep {
		keep[i] = true
	}
	for _, f := range filters {
		col, ok := t.column(f.Column)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "unknown filter column %q", f.Column)
		}
		for i := 0; i < t.NumRows; i++ {
			if keep[i] && !matches(col.ValueAt(i), f.Op, f.Value) {
				keep[i] = false
			}
		}
	}
	return t.selectRows(keep), nil
}

func (t *Table) selectRows(keep []bool) *Table {
	out := &Table{}
	for _, c := range t.Columns {
		nc := Column{Name: c.Name, Type: c.Type}
		for i, k := range keep {
			if !k {
				continue
			}
			switch c.Type {
			case TypeString:
				nc.Strings = append(nc.Strings, c.Strings[i])
			case TypeInt64:
				nc.Ints = append(nc.Ints, c.Ints[i])
			case TypeFloat:
				nc.Floats = append(nc.Floats, c.Floats[i])
			case TypeBool:
				nc.Bools = append(nc.Bools, c.Bools[i])
			}
		}
		out.Columns = append(out.Columns, nc)
	}
	out.NumRows = len(boolsTrue(keep))
	return out
}

func boolsTrue(keep []bool) []bool {
	var out []bool
	for _, k := range keep {
		if k {
			out = append(out, true)
		}
	}
	return out
}

func matches(a interface{}, op FilterOp, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case OpEQ:
			return af == bf
		case OpNE:
			return af != bf
		case OpLT:
			return af < bf
		case OpLE:
			return af <= bf
		case OpGT:
			return af > bf
		case OpGE:
			return af >= bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case OpEQ:
			return as == bs
		case OpNE:
			return as != bs
		case OpLT:
			return as < bs
		case OpLE:
			return as <= bs
		case OpGT:
			return as > bs
		case OpGE:
			return as >= bs
		}
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok && (op == OpEQ || op == OpNE) {
		if op == OpEQ {
			return ab == bb
		}
		return ab != bb
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// partitionKey renders the tuple of partition-column values for row i as a
// stable directory-path-safe string, e.g. "region=us/day=2026-07-29".
func partitionKey(t *Table, partitionCols []string, row int) (string, []string, error) {
	parts := make([]string, 0, len(partitionCols))
	values := make([]string, 0, len(partitionCols))
	for _, name := range partitionCols {
		c, ok := t.column(name)
		if !ok {
			return "", nil, errs.Newf(errs.InvalidArgument, "unknown partition column %q", name)
		}
		v := c.stringAt(row)
		parts = append(parts, fmt.Sprintf("%s=%s", name, v))
		values = append(values, v)
	}
	return joinPath(parts), values, nil
}

func joinPath(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// sortedPartitionKeys returns the distinct partition directory keys for a
// table, in deterministic (sorted) order, so two stores of the same table
// always write partitions in the same order (supports CID determinism).
func sortedPartitionKeys(t *Table, partitionCols []string) ([]string, map[string][]int, error) {
	groups := make(map[string][]int)
	var order []string
	for i := 0; i < t.NumRows; i++ {
		key, _, err := partitionKey(t, partitionCols, i)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Strings(order)
	return order, groups, nil
}

func (t *Table) rowsAt(indices []int) *Table {
	keep := make([]bool, t.NumRows)
	for _, i := range indices {
		keep[i] = true
	}
	return t.selectRows(keep)
}
