package testing

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/registry"
)

// WriteCSV writes header and rows to dir/name and returns the path
func WriteCSV(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	return p
}

// SubwayHeader is the header of a normalized subway delay file
var SubwayHeader = []string{"Date", "Time", "Day", "Station", "Code", "Min Delay", "Min Gap", "Bound", "Line"}

// SubwayRows returns n distinct, contract-conforming subway delay rows
func SubwayRows(n int) [][]string {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([][]string, n)
	for i := range rows {
		d := start.AddDate(0, 0, i/24)
		rows[i] = []string{
			d.Format("2006-01-02"),
			strconv.Itoa(i%24) + ":15",
			d.Weekday().String(),
			"UNION STATION",
			"MUSAN",
			strconv.Itoa(i%7 + 1),
			strconv.Itoa(i%5 + 3),
			"N",
			"YU",
		}
	}
	return rows
}

// SubwayDescriptor is a small registry entry targeting table
func SubwayDescriptor(name, table string) registry.Descriptor {
	return registry.Descriptor{
		Name:        name,
		Title:       "Subway delays",
		Method:      registry.MethodCatalog,
		Source:      "pkg-" + name,
		Format:      registry.FormatCSV,
		StartYear:   2024,
		EndYear:     2024,
		Subpath:     name,
		TargetTable: table,
		NaturalKey:  []string{"DATE", "TIME", "STATION", "LINE", "CODE", "MIN_DELAY"},
		Columns: []registry.ColumnMapping{
			{Source: "Date", Column: "DATE"},
			{Source: "Time", Column: "TIME"},
			{Source: "Day", Column: "DAY"},
			{Source: "Station", Column: "STATION"},
			{Source: "Code", Column: "CODE"},
			{Source: "Min Delay", Column: "MIN_DELAY"},
			{Source: "Min Gap", Column: "MIN_GAP"},
			{Source: "Bound", Column: "BOUND"},
			{Source: "Line", Column: "LINE"},
		},
	}
}

// SubwayContract is the contract matching SubwayHeader
func SubwayContract(name string) contract.Contract {
	return contract.Contract{
		Dataset: name,
		Columns: []contract.ColumnSpec{
			{Name: "Date", Type: contract.TypeDate},
			{Name: "Time", Type: contract.TypeTime},
			{Name: "Day", Type: contract.TypeString},
			{Name: "Station", Type: contract.TypeString},
			{Name: "Code", Type: contract.TypeString, Nullable: true},
			{Name: "Min Delay", Type: contract.TypeInteger},
			{Name: "Min Gap", Type: contract.TypeInteger, Nullable: true},
			{Name: "Bound", Type: contract.TypeString, Nullable: true},
			{Name: "Line", Type: contract.TypeString, Nullable: true},
		},
		MinRowCount: 1,
	}
}
