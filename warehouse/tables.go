package warehouse

import (
	"strings"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/registry"
)

// Column is one target column and the source header feeding it
type Column struct {
	Source string
	Name   string
	Type   contract.ColumnType
}

// TableSpec is the target table of one dataset
type TableSpec struct {
	Dataset string
	Table   string
	Columns []Column
	Key     []string // natural key, warehouse column names
}

// SpecFor derives the table spec from a descriptor and its contract.
// A mapping's explicit type wins over the contract's; unknown columns are STRING.
func SpecFor(d registry.Descriptor, c contract.Contract) (TableSpec, error) {
	spec := TableSpec{
		Dataset: d.Name,
		Table:   d.TargetTable,
		Key:     append([]string(nil), d.NaturalKey...),
	}
	for _, m := range d.Columns {
		t := contract.TypeString
		if m.Type != "" {
			parsed, err := contract.ParseColumnType(m.Type)
			if err != nil {
				return TableSpec{}, errors.Wrapf(err, "dataset %s column %s", d.Name, m.Column)
			}
			t = parsed
		} else if col, ok := c.Column(m.Source); ok {
			t = col.Type
		}
		spec.Columns = append(spec.Columns, Column{Source: m.Source, Name: m.Column, Type: t})
	}
	if len(spec.Columns) == 0 {
		return TableSpec{}, errors.NewInvalidRequestError("dataset %s maps no columns", d.Name)
	}
	return spec, nil
}

// IsKey reports whether name is part of the natural key
func (s TableSpec) IsKey(name string) bool {
	for _, k := range s.Key {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// ColumnNames returns the target column names in order
func (s TableSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// NonKey returns the columns outside the natural key
func (s TableSpec) NonKey() []Column {
	var out []Column
	for _, c := range s.Columns {
		if !s.IsKey(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// CreateTableSQL returns idempotent DDL for the target table
func (s TableSpec) CreateTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS " + QuoteIdent(s.Table) + " (\n  " +
		strings.Join(s.columnDefs(), ",\n  ") + "\n)"
}

// CreateScratchSQL returns DDL for a TEMP scratch table carrying the
// target columns plus the _LOAD_SEQ ordinal
func (s TableSpec) CreateScratchSQL(scratch string) string {
	defs := append(s.columnDefs(), QuoteIdent(LoadSeqColumn)+" BIGINT NOT NULL")
	return "CREATE TEMP TABLE " + QuoteIdent(scratch) + " (\n  " + strings.Join(defs, ",\n  ") + "\n)"
}

// LoadSeqColumn orders scratch rows by arrival
const LoadSeqColumn = "_LOAD_SEQ"

func (s TableSpec) columnDefs() []string {
	defs := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		defs[i] = QuoteIdent(c.Name) + " " + SQLType(c.Type)
	}
	return defs
}

// SQLType maps a logical type onto a column type every driver accepts.
// Timestamps stay text: spreadsheet exports use m/d/yyyy h:mm.
func SQLType(t contract.ColumnType) string {
	switch t {
	case contract.TypeDate:
		return "DATE"
	case contract.TypeTime:
		return "TIME"
	case contract.TypeInteger:
		return "BIGINT"
	case contract.TypeDecimal:
		return "DOUBLE PRECISION"
	default:
		return "VARCHAR"
	}
}
