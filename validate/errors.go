package validate

import (
	"fmt"
	"strings"

	"github.com/teranos/civicload/errors"
)

// Violation is one value that does not satisfy its column's contract
type Violation struct {
	Row      int // 1-based, header excluded
	Column   string
	Expected string // logical type, or "non-null"
	Observed string
}

func (v Violation) String() string {
	if v.Expected == expectedNonNull {
		return fmt.Sprintf("Row %d: column '%s' is empty but not nullable", v.Row, v.Column)
	}
	return fmt.Sprintf("Row %d: column '%s' value '%s' does not match expected type %s",
		v.Row, v.Column, v.Observed, v.Expected)
}

// SchemaValidationError reports a file that breaks its contract
type SchemaValidationError struct {
	Path       string
	Dataset    string
	Expected   []string
	Actual     []string
	Missing    []string
	Mismatches []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %s", e.Path, strings.Join(e.Mismatches, "; "))
}

// Kind implements errors.Kinded
func (e *SchemaValidationError) Kind() errors.Kind { return errors.KindSchemaValidation }
