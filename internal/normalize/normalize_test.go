package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/esg-hub/internal/model"
)

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{"float", 150.5, 150.5, true},
		{"int", 42, 42, true},
		{"json number", json.Number("12.5"), 12.5, true},
		{"thousands", "1,250.5", 1250.5, true},
		{"percent", "88%", 88, true},
		{"currency", "$ 1,000", 1000, true},
		{"negative", "-3.25", -3.25, true},
		{"full-width space", "1　000", 1000, true},
		{"empty", "", 0, false},
		{"only symbols", "$%", 0, false},
		{"text", "n/a", 0, false},
		{"trailing garbage", "12abc", 0, false},
		{"nan", "NaN", 0, false},
		{"inf", "Inf", 0, false},
		{"hex float", "0x1p4", 0, false},
		{"signed hex", "-0X10", 0, false},
		{"underscores", "1_000", 0, false},
		{"exponent", "1.5e3", 1500, true},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"object", map[string]any{"v": 1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.False(t, IsEmpty(" "))
	assert.False(t, IsEmpty(0.0))
	assert.False(t, IsEmpty(false))
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "150.5", CellString(150.5))
	assert.Equal(t, "1000000", CellString(1e6))
	assert.Equal(t, "abc", CellString("abc"))
	assert.Equal(t, "true", CellString(true))
	assert.Equal(t, "", CellString(nil))
}

func TestExtractPeriod(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		row  model.Row
		want string
	}{
		{"default current year", model.Row{"co2": 1.0}, "2025"},
		{"year number", model.Row{"year": 2024.0}, "2024"},
		{"upper case key", model.Row{"YEAR": "2023"}, "2023"},
		{"mixed case key", model.Row{"Reporting_Period": "2024-Q2"}, "2024-Q2"},
		{"year before period", model.Row{"period": "2024-Q1", "year": "2024"}, "2024"},
		{"empty year falls through", model.Row{"year": "", "date": "2024-03-31"}, "2024-03-31"},
		{"zero is not a period", model.Row{"year": 0.0}, "2025"},
		{"nil is not a period", model.Row{"period": nil}, "2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPeriod(tt.row, now))
		})
	}
}
