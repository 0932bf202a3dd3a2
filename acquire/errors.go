package acquire

import (
	"fmt"

	"github.com/teranos/civicload/errors"
)

// AcquisitionError reports a resource that could not be fetched.
// StatusCode is 0 when no HTTP response was received.
type AcquisitionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *AcquisitionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("acquisition failed: HTTP %d for %s: %v", e.StatusCode, e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("acquisition failed: HTTP %d for %s", e.StatusCode, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("acquisition failed for %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("acquisition failed for %s", e.URL)
	}
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Kind implements errors.Kinded
func (e *AcquisitionError) Kind() errors.Kind { return errors.KindAcquisition }
