// Package contract holds the schema contracts datasets are validated against.
//
// Contracts are versioned with the code: the catalog is embedded in the
// binary and built once. Values handed out by the Store are copies.
package contract

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/civicload/errors"
)

// ColumnType is the logical type a column's values must satisfy
type ColumnType string

const (
	TypeDate      ColumnType = "DATE"
	TypeTime      ColumnType = "TIME"
	TypeString    ColumnType = "STRING"
	TypeInteger   ColumnType = "INTEGER"
	TypeDecimal   ColumnType = "DECIMAL"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// ParseColumnType converts a catalog type name into a ColumnType
func ParseColumnType(s string) (ColumnType, error) {
	switch t := ColumnType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeDate, TypeTime, TypeString, TypeInteger, TypeDecimal, TypeTimestamp:
		return t, nil
	default:
		return "", errors.NewInvalidRequestError("unknown column type %q", s)
	}
}

// ColumnSpec declares one expected column
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Contract is the expected shape of every file of one dataset
type Contract struct {
	Dataset     string
	Version     *semver.Version
	Columns     []ColumnSpec
	MinRowCount int
}

// ColumnNames returns the contract's column names in declaration order
func (c Contract) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// Required returns every column a file must carry. All declared columns are
// required in the header; nullability only governs empty values.
func (c Contract) Required() []string {
	return c.ColumnNames()
}

// Column finds a column by name, ignoring case
func (c Contract) Column(name string) (ColumnSpec, bool) {
	for _, col := range c.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return ColumnSpec{}, false
}

func (c Contract) clone() Contract {
	cols := make([]ColumnSpec, len(c.Columns))
	copy(cols, c.Columns)
	c.Columns = cols
	return c
}

func (c Contract) check() error {
	if c.Dataset == "" {
		return errors.NewInvalidRequestError("contract without dataset name")
	}
	if len(c.Columns) == 0 {
		return errors.NewInvalidRequestError("contract %s declares no columns", c.Dataset)
	}
	if c.MinRowCount < 0 {
		return errors.NewInvalidRequestError("contract %s: min_row_count must be >= 0", c.Dataset)
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		key := strings.ToLower(col.Name)
		if col.Name == "" {
			return errors.NewInvalidRequestError("contract %s has an unnamed column", c.Dataset)
		}
		if seen[key] {
			return errors.NewInvalidRequestError("contract %s declares %q twice", c.Dataset, col.Name)
		}
		seen[key] = true
	}
	return nil
}
