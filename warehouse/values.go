package warehouse

import (
	"strconv"
	"strings"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
)

// Convert turns a raw CSV cell into the value bound for a column of type t.
// Empty cells and the literal NULL become nil.
func Convert(raw string, t contract.ColumnType) (any, error) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "NULL") {
		return nil, nil
	}

	switch t {
	case contract.TypeInteger:
		n, err := strconv.ParseInt(strings.TrimSuffix(v, ".0"), 10, 64)
		if err != nil {
			return nil, errors.Newf("value %q is not an INTEGER", raw)
		}
		return n, nil
	case contract.TypeDecimal:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Newf("value %q is not a DECIMAL", raw)
		}
		return f, nil
	case contract.TypeDate:
		v = strings.TrimSuffix(strings.TrimSuffix(v, " 00:00:00"), "T00:00:00")
		if len(v) != len("2006-01-02") {
			return nil, errors.Newf("value %q is not a DATE", raw)
		}
		return v, nil
	case contract.TypeTime:
		return padTime(v, raw)
	default:
		return v, nil
	}
}

// padTime normalizes H:MM and HH:MM[:SS] to HH:MM:SS
func padTime(v, raw string) (string, error) {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", errors.Newf("value %q is not a TIME", raw)
	}
	for len(parts) < 3 {
		parts = append(parts, "00")
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i == 0 && n > 23) || (i > 0 && n > 59) {
			return "", errors.Newf("value %q is not a TIME", raw)
		}
		parts[i] = twoDigits(n)
	}
	return strings.Join(parts, ":"), nil
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
