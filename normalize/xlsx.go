// Package normalize converts raw source files into UTF-8 CSV.
//
// Every function here is a pure file-to-file transform: no network and no
// shared state. Outputs are written atomically and re-running a transform on
// the same input produces the same output.
package normalize

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/teranos/civicload/errors"
)

// SheetOptions selects what ToDelimitedText reads
type SheetOptions struct {
	Sheet string // empty = first sheet
}

// Result describes one converted workbook
type Result struct {
	Source  string
	Path    string
	Sheet   string
	Rows    int // data rows, header excluded
	Columns int
}

// ToDelimitedText streams one worksheet of the workbook at src into a CSV at dst.
// Rows shorter than the header are padded with empty cells; blank rows are dropped.
// Date and time cells are written as yyyy-mm-dd, HH:MM:SS or both, whatever
// number format the workbook displays them with.
func ToDelimitedText(src, dst string, opts SheetOptions) (Result, error) {
	res := Result{Source: src, Path: dst}

	if _, err := os.Stat(src); err != nil {
		return res, &NormalizationError{Path: src, Err: errors.Wrap(err, "stat workbook")}
	}

	f, err := excelize.OpenFile(src)
	if err != nil {
		return res, &NormalizationError{Path: src, Err: errors.Mark(errors.Wrap(err, "open workbook"), ErrNotWorkbook)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, &NormalizationError{Path: src, Err: errors.New("workbook has no worksheets")}
	}
	sheet := sheets[0]
	if opts.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if s == opts.Sheet {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return res, &NormalizationError{
				Path: src,
				Err:  errors.Newf("sheet %q not found; available sheets: %s", opts.Sheet, strings.Join(sheets, ", ")),
			}
		}
	}
	res.Sheet = sheet

	rows, err := f.Rows(sheet)
	if err != nil {
		return res, &NormalizationError{Path: src, Err: errors.Wrapf(err, "read sheet %s", sheet)}
	}
	defer rows.Close()

	cf := newCellFormatter(f, sheet)
	err = writeAtomic(dst, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		first := true
		rowNum := 0
		for rows.Next() {
			rowNum++
			cells, err := rows.Columns(excelize.Options{RawCellValue: true})
			if err != nil {
				return errors.Wrapf(err, "read row %d", rowNum)
			}
			if blank(cells) {
				continue
			}
			for i, v := range cells {
				if v != "" {
					cells[i] = cf.format(i+1, rowNum, v)
				}
			}
			if first {
				res.Columns = len(cells)
				first = false
			} else {
				res.Rows++
				for len(cells) < res.Columns {
					cells = append(cells, "")
				}
			}
			if err := cw.Write(cells); err != nil {
				return errors.Wrap(err, "write csv")
			}
		}
		if err := rows.Error(); err != nil {
			return errors.Wrap(err, "iterate rows")
		}
		cw.Flush()
		return errors.Wrap(cw.Error(), "flush csv")
	})
	if err != nil {
		return res, &NormalizationError{Path: src, Err: err}
	}
	return res, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
