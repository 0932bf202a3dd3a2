package normalize

import (
	"fmt"

	"github.com/teranos/civicload/errors"
)

// ErrNotWorkbook marks a spreadsheet that cannot be opened as a workbook.
// Portal files named .xlsx are sometimes plain CSV.
var ErrNotWorkbook = errors.New("not a valid xlsx workbook")

// NormalizationError reports a file that could not be converted or extracted
type NormalizationError struct {
	Path string
	Err  error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Path, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Kind implements errors.Kinded
func (e *NormalizationError) Kind() errors.Kind { return errors.KindNormalization }

// EncodingError reports a file whose character set could not be detected
// with enough confidence
type EncodingError struct {
	Path       string
	Charset    string
	Confidence float64
	Threshold  float64
}

func (e *EncodingError) Error() string {
	if e.Charset == "" {
		return fmt.Sprintf("cannot detect encoding of %s", e.Path)
	}
	return fmt.Sprintf("low confidence (%.2f < %.2f) detecting encoding of %s: best candidate %s",
		e.Confidence, e.Threshold, e.Path, e.Charset)
}

// Kind implements errors.Kinded
func (e *EncodingError) Kind() errors.Kind { return errors.KindEncoding }
