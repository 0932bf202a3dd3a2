package load

import (
	"fmt"

	"github.com/teranos/civicload/errors"
)

// LoadError reports a load that was rolled back.
// File and Line are set when a row of a staged file could not be copied.
type LoadError struct {
	Dataset string
	Table   string
	File    string
	Line    int
	Err     error
}

func (e *LoadError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("load of %s into %s failed at %s line %d: %v", e.Dataset, e.Table, e.File, e.Line, e.Err)
	case e.File != "":
		return fmt.Sprintf("load of %s into %s failed at %s: %v", e.Dataset, e.Table, e.File, e.Err)
	default:
		return fmt.Sprintf("load of %s into %s failed: %v", e.Dataset, e.Table, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// Kind implements errors.Kinded
func (e *LoadError) Kind() errors.Kind { return errors.KindLoad }
