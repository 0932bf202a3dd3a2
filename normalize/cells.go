package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type cellKind int

const (
	kindPlain cellKind = iota
	kindDate
	kindTime
	kindDateTime
)

// Fixed renderings for date-formatted cells, whatever the workbook displays.
const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// cellFormatter renders raw cell values of one sheet. Cells formatted as
// dates or times become ISO text; everything else keeps its stored value.
type cellFormatter struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	kinds    map[int]cellKind // style id -> kind
}

func newCellFormatter(f *excelize.File, sheet string) *cellFormatter {
	cf := &cellFormatter{f: f, sheet: sheet, kinds: make(map[int]cellKind)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		cf.date1904 = *props.Date1904
	}
	return cf
}

// format returns the CSV text for the raw value at (col, row), both 1-based.
// Values in cells without a date or time format pass through unchanged.
func (cf *cellFormatter) format(col, row int, raw string) string {
	serial, numErr := strconv.ParseFloat(raw, 64)
	if numErr != nil && !looksISO(raw) {
		return raw
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	kind := cf.kindAt(cell)
	if kind == kindPlain {
		return raw
	}
	if kind == kindTime && numErr == nil {
		return clockTime(serial).Format(timeLayout)
	}

	var t time.Time
	if numErr == nil {
		if t, err = excelize.ExcelDateToTime(serial, cf.date1904); err != nil {
			return raw
		}
		t = t.Round(time.Second)
	} else if t, err = parseISOCell(raw); err != nil {
		return raw
	}

	switch kind {
	case kindTime:
		return t.Format(timeLayout)
	case kindDateTime:
		return t.Format(dateTimeLayout)
	}
	return t.Format(dateLayout)
}

func (cf *cellFormatter) kindAt(cell string) cellKind {
	id, err := cf.f.GetCellStyle(cf.sheet, cell)
	if err != nil || id == 0 {
		return kindPlain
	}
	if k, ok := cf.kinds[id]; ok {
		return k
	}
	k := kindPlain
	if style, err := cf.f.GetStyle(id); err == nil {
		k = styleKind(style)
	}
	cf.kinds[id] = k
	return k
}

// looksISO reports whether raw could be the value of an inline date cell.
func looksISO(raw string) bool {
	return len(raw) >= 10 && raw[4] == '-' && raw[7] == '-'
}

// parseISOCell reads the value of an inline date cell (t="d").
func parseISOCell(raw string) (time.Time, error) {
	var err error
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", dateLayout} {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t.Round(time.Second), nil
		}
	}
	return time.Time{}, err
}

// clockTime keeps only the fraction of a day in serial.
func clockTime(serial float64) time.Time {
	frac := serial - math.Floor(serial)
	secs := math.Round(frac * 86400)
	return time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).Add(time.Duration(secs) * time.Second)
}
