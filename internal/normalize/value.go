// Package normalize turns raw spreadsheet cells into numeric observations.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// stripChars are removed from string cells before parsing.
const stripChars = ",$%"

// ParseNumeric converts a cell value to a float64. Numbers pass through
// unchanged. Strings are stripped of thousands separators, currency and
// percent signs and whitespace, then parsed strictly; "12abc" does not parse.
// Every other type reports false.
func ParseNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		return parseString(n.String())
	case string:
		return parseString(n)
	default:
		return 0, false
	}
}

func parseString(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripChars, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" || !isDecimal(cleaned) {
		return 0, false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// isDecimal rejects the hex and underscore forms strconv.ParseFloat accepts.
func isDecimal(s string) bool {
	digits := strings.TrimLeft(s, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return false
	}
	return !strings.ContainsRune(s, '_')
}

// IsEmpty reports whether a cell carries no value at all.
func IsEmpty(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == ""
	}
	return false
}

// CellString renders a cell the way it is shown to classifiers as a sample.
func CellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case json.Number:
		return c.String()
	default:
		return fmt.Sprint(c)
	}
}
