package registry

import (
	"strings"
	"time"

	"github.com/teranos/civicload/errors"
)

// Method is how a dataset's remote files are discovered
type Method string

const (
	// MethodCatalog looks resources up through the open-data catalog API
	MethodCatalog Method = "catalog"
	// MethodTemplate expands a URL template once per year
	MethodTemplate Method = "template"
)

// Format is the file format a source publishes
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatZIP  Format = "zip"
)

// ColumnMapping binds a source header to a warehouse column.
// Type is optional; the contract's type applies when empty.
type ColumnMapping struct {
	Source string `toml:"source"`
	Column string `toml:"column"`
	Type   string `toml:"type"`
}

// HeaderRename renames a source header in files from FromYear onward
type HeaderRename struct {
	FromYear int    `toml:"from_year"`
	From     string `toml:"from"`
	To       string `toml:"to"`
}

// Descriptor identifies one source and everything needed to ingest it
type Descriptor struct {
	Name   string
	Title  string
	Method Method
	// Source is the catalog package id or the URL template
	Source string
	Params map[string]string
	Format Format

	StartYear int
	EndYear   int // 0 = current year

	Subpath string
	Sheet   string // worksheet to convert; empty = first sheet
	MinYear int    // files from earlier years are not normalized; 0 = no floor

	RequestDelay time.Duration
	Timeout      time.Duration

	TargetTable string
	NaturalKey  []string
	Columns     []ColumnMapping
	Renames     []HeaderRename
}

// Years returns the inclusive year range relative to now
func (d Descriptor) Years(now time.Time) []int {
	end := d.EndYear
	if end == 0 {
		end = now.Year()
	}
	var years []int
	for y := d.StartYear; y <= end; y++ {
		years = append(years, y)
	}
	return years
}

// InRange reports whether year falls inside the descriptor's range
func (d Descriptor) InRange(year int, now time.Time) bool {
	end := d.EndYear
	if end == 0 {
		end = now.Year()
	}
	return year >= d.StartYear && year <= end
}

// ForYear returns a copy restricted to a single year
func (d Descriptor) ForYear(year int) Descriptor {
	c := d.clone()
	c.StartYear, c.EndYear = year, year
	return c
}

// Processable reports whether files of the given year pass the MinYear floor.
// Files without a year are always processed.
func (d Descriptor) Processable(year int, known bool) bool {
	return !known || d.MinYear == 0 || year >= d.MinYear
}

// RenamesFor returns the header renames effective for a file of the given year
func (d Descriptor) RenamesFor(year int) map[string]string {
	out := make(map[string]string)
	for _, r := range d.Renames {
		if year >= r.FromYear {
			out[r.From] = r.To
		}
	}
	return out
}

// WarehouseColumns returns the target column names in mapping order
func (d Descriptor) WarehouseColumns() []string {
	cols := make([]string, len(d.Columns))
	for i, m := range d.Columns {
		cols[i] = m.Column
	}
	return cols
}

func (d Descriptor) clone() Descriptor {
	c := d
	if d.Params != nil {
		c.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			c.Params[k] = v
		}
	}
	c.NaturalKey = append([]string(nil), d.NaturalKey...)
	c.Columns = append([]ColumnMapping(nil), d.Columns...)
	c.Renames = append([]HeaderRename(nil), d.Renames...)
	return c
}

func (d Descriptor) check() error {
	if d.Name == "" {
		return errors.NewInvalidRequestError("dataset without a name")
	}
	switch d.Method {
	case MethodCatalog, MethodTemplate:
	default:
		return errors.NewInvalidRequestError("dataset %s: unknown method %q", d.Name, d.Method)
	}
	switch d.Format {
	case FormatXLSX, FormatCSV, FormatZIP:
	default:
		return errors.NewInvalidRequestError("dataset %s: unknown format %q", d.Name, d.Format)
	}
	if d.Source == "" {
		return errors.NewInvalidRequestError("dataset %s: source is required", d.Name)
	}
	if d.EndYear != 0 && d.EndYear < d.StartYear {
		return errors.NewInvalidRequestError("dataset %s: year range %d..%d is empty", d.Name, d.StartYear, d.EndYear)
	}
	if d.TargetTable == "" {
		return errors.NewInvalidRequestError("dataset %s: target_table is required", d.Name)
	}
	if len(d.NaturalKey) == 0 {
		return errors.NewInvalidRequestError("dataset %s: natural_key is required", d.Name)
	}

	columns := make(map[string]bool, len(d.Columns))
	for _, m := range d.Columns {
		if m.Source == "" || m.Column == "" {
			return errors.NewInvalidRequestError("dataset %s: column mapping needs source and column", d.Name)
		}
		key := strings.ToUpper(m.Column)
		if columns[key] {
			return errors.NewInvalidRequestError("dataset %s: warehouse column %s mapped twice", d.Name, m.Column)
		}
		columns[key] = true
	}
	for _, k := range d.NaturalKey {
		if !columns[strings.ToUpper(k)] {
			return errors.NewInvalidRequestError("dataset %s: natural key column %s is not mapped", d.Name, k)
		}
	}
	return nil
}
