package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/esg-hub/internal/model"
)

// periodFields are checked in order, case-insensitively.
var periodFields = []string{"year", "period", "date", "reporting_period"}

// ExtractPeriod returns the reporting period named in row, or the calendar
// year of now when the row carries none.
func ExtractPeriod(row model.Row, now time.Time) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range periodFields {
		for _, k := range keys {
			if !strings.EqualFold(k, field) {
				continue
			}
			if p, ok := periodString(row[k]); ok {
				return p
			}
		}
	}
	return strconv.Itoa(now.Year())
}

// periodString renders a truthy period value.
func periodString(v any) (string, bool) {
	switch p := v.(type) {
	case nil:
		return "", false
	case string:
		p = strings.TrimSpace(p)
		return p, p != ""
	case float64:
		if p == 0 {
			return "", false
		}
		return strconv.FormatFloat(p, 'f', -1, 64), true
	case int:
		if p == 0 {
			return "", false
		}
		return strconv.Itoa(p), true
	case json.Number:
		return p.String(), p.String() != "" && p.String() != "0"
	case bool:
		return "", false
	default:
		return fmt.Sprint(p), true
	}
}
