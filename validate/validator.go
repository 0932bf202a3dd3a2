// Package validate checks normalized CSV files against their schema contract.
//
// Validation is binary per file and fails fast: the first structural problem
// or the first sampled value of the wrong type rejects the file.
package validate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
)

// DefaultSampleRows is how many data rows are type-checked per file
const DefaultSampleRows = 1000

const expectedNonNull = "non-null"

// Outcome is the result of validating one file
type Outcome struct {
	Path       string
	Passed     bool
	Rows       int // data rows in the file
	Sampled    int // data rows type-checked
	Columns    int
	Violations []Violation
	Warnings   []string
}

// Validator checks files against contracts
type Validator struct {
	sampleRows int
	log        *zap.SugaredLogger
}

// New returns a Validator sampling sampleRows rows per file (0 = default)
func New(sampleRows int, log *zap.SugaredLogger) *Validator {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Validator{sampleRows: sampleRows, log: log}
}

// Validate checks the CSV at path against c. On failure the returned error is
// a *SchemaValidationError and the Outcome has Passed == false.
func (v *Validator) Validate(path string, c contract.Contract) (Outcome, error) {
	out := Outcome{Path: path}

	f, err := os.Open(path)
	if err != nil {
		return out, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return out, v.fail(path, c, nil, nil, []string{"file has no header row"})
	}
	if err != nil {
		return out, errors.Wrapf(err, "read header of %s", path)
	}
	header = trimAll(header)
	out.Columns = len(header)

	// Structural phase
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(col)] = i
	}

	var missing []string
	for _, name := range c.Required() {
		if _, ok := index[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return out, v.fail(path, c, header, missing,
			[]string{"missing required columns: " + strings.Join(missing, ", ")})
	}

	for _, col := range header {
		spec, ok := c.Column(col)
		switch {
		case !ok:
			out.Warnings = append(out.Warnings, fmt.Sprintf("extra column not in contract: %s", col))
		case spec.Name != col:
			out.Warnings = append(out.Warnings, fmt.Sprintf("column case mismatch: expected '%s', found '%s'", spec.Name, col))
		}
	}

	// Type phase
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, errors.Wrapf(err, "read %s row %d", path, out.Rows+1)
		}
		out.Rows++
		if out.Sampled >= v.sampleRows {
			continue
		}
		out.Sampled++

		if viols := checkRow(row, out.Rows, c, index); len(viols) > 0 {
			out.Violations = append(out.Violations, viols...)
			mismatches := make([]string, len(viols))
			for i, viol := range viols {
				mismatches[i] = viol.String()
			}
			return out, v.fail(path, c, header, nil, mismatches)
		}
	}

	if out.Rows < c.MinRowCount {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("only %d rows (expected >= %d)", out.Rows, c.MinRowCount))
	}

	for _, w := range out.Warnings {
		v.log.Warnw(w, logger.FieldFile, path, logger.FieldDataset, c.Dataset)
	}
	v.log.Debugw("Valid file",
		logger.FieldFile, path,
		logger.FieldRows, out.Rows,
		"columns", out.Columns,
	)

	out.Passed = true
	return out, nil
}

// ValidateAll validates paths in order and stops at the first failing file.
// The returned outcomes include the failing one.
func (v *Validator) ValidateAll(paths []string, c contract.Contract) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(paths))
	for _, p := range paths {
		out, err := v.Validate(p, c)
		outcomes = append(outcomes, out)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// checkRow returns every violation in row, in contract column order.
func checkRow(row []string, rowNum int, c contract.Contract, index map[string]int) []Violation {
	var viols []Violation
	for _, col := range c.Columns {
		i := index[strings.ToLower(col.Name)]
		value := ""
		if i < len(row) {
			value = strings.TrimSpace(row[i])
		}

		if IsNull(value) {
			if !col.Nullable {
				viols = append(viols, Violation{Row: rowNum, Column: col.Name, Expected: expectedNonNull, Observed: value})
			}
			continue
		}
		if !Conforms(value, col.Type) {
			viols = append(viols, Violation{Row: rowNum, Column: col.Name, Expected: string(col.Type), Observed: truncate(value, 50)})
		}
	}
	return viols
}

func (v *Validator) fail(path string, c contract.Contract, header, missing, mismatches []string) error {
	err := &SchemaValidationError{
		Path:       path,
		Dataset:    c.Dataset,
		Expected:   c.ColumnNames(),
		Actual:     header,
		Missing:    missing,
		Mismatches: mismatches,
	}
	v.log.Errorw("Schema validation failed",
		logger.FieldFile, path,
		logger.FieldDataset, c.Dataset,
		logger.FieldError, err.Error(),
	)
	return err
}

func trimAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
