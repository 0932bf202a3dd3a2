package normalize

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/teranos/civicload/errors"
)

// RenameHeaders renames header columns that exactly match a key of renames.
// The file is rewritten only when at least one column changed.
func RenameHeaders(path string, renames map[string]string) (bool, error) {
	if len(renames) == 0 {
		return false, nil
	}

	header, err := ReadHeader(path)
	if err != nil || header == nil {
		return false, err
	}

	changed := false
	next := make([]string, len(header))
	for i, col := range header {
		next[i] = col
		if to, ok := renames[strings.TrimSpace(col)]; ok && to != col {
			next[i] = to
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	err = rewriteCSV(path, func(row []string, isHeader bool) []string {
		if isHeader {
			return next
		}
		return row
	})
	return err == nil, err
}

// StripColumns removes every column whose name is not in keep (case-insensitive)
// and returns the removed names in header order.
func StripColumns(path string, keep []string) ([]string, error) {
	header, err := ReadHeader(path)
	if err != nil || header == nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(keep))
	for _, k := range keep {
		allowed[strings.ToLower(strings.TrimSpace(k))] = true
	}

	var keepIdx []int
	var removed []string
	for i, col := range header {
		if allowed[strings.ToLower(strings.TrimSpace(col))] {
			keepIdx = append(keepIdx, i)
		} else {
			removed = append(removed, col)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	err = rewriteCSV(path, func(row []string, _ bool) []string {
		out := make([]string, len(keepIdx))
		for j, i := range keepIdx {
			if i < len(row) {
				out[j] = row[i]
			}
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// ReadHeader returns the first record of a CSV file, or nil for an empty file
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	header, err := newReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", path)
	}
	return header, nil
}

// rewriteCSV streams path through fn and replaces it atomically
func rewriteCSV(path string, fn func(row []string, isHeader bool) []string) error {
	in, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer in.Close()

	return writeAtomic(path, func(w io.Writer) error {
		cr := newReader(in)
		cw := csv.NewWriter(w)
		for line := 1; ; line++ {
			row, err := cr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrapf(err, "read %s line %d", path, line)
			}
			if err := cw.Write(fn(row, line == 1)); err != nil {
				return errors.Wrap(err, "write csv")
			}
		}
		cw.Flush()
		return errors.Wrap(cw.Error(), "flush csv")
	})
}
