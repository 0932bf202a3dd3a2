package validate

import (
	"regexp"
	"strings"

	"github.com/teranos/civicload/contract"
)

var (
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]00:00:00)?$`)
	timePattern    = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
	integerPattern = regexp.MustCompile(`^-?\d+(\.0)?$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.?\d*$`)
)

// Timestamps come as m/d/yyyy h:mm from spreadsheets or ISO from CSV exports
var timestampPattern = regexp.MustCompile(
	`^\d{1,2}/\d{1,2}/\d{4}\s+\d{1,2}:\d{2}$` +
		`|^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?$`)

// IsNull reports whether a raw cell counts as null
func IsNull(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, "NULL")
}

// Conforms reports whether a non-null value satisfies the logical type
func Conforms(value string, t contract.ColumnType) bool {
	switch t {
	case contract.TypeDate:
		return datePattern.MatchString(value)
	case contract.TypeTime:
		return timePattern.MatchString(value)
	case contract.TypeInteger:
		return integerPattern.MatchString(value)
	case contract.TypeDecimal:
		return decimalPattern.MatchString(value)
	case contract.TypeTimestamp:
		return timestampPattern.MatchString(value)
	default:
		return true
	}
}
