package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNumber(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want *float64
	}{
		{"nil", nil, nil},
		{"float", 42.5, f(42.5)},
		{"int", 7, f(7)},
		{"numeric string", "19.95", f(19.95)},
		{"padded string", "  12 ", f(12)},
		{"empty string", "", nil},
		{"blank string", "   ", nil},
		{"garbage string", "lots", nil},
		{"bool", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToNumber(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func f(v float64) *float64 { return &v }

func TestToDateStrings(t *testing.T) {
	got := ToDate("2026-08-26T14:30:00Z")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC), got.UTC())

	got = ToDate("2026-08-26 14:30:00")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC), got.UTC())

	got = ToDate("2026-08-26")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), got.UTC())

	assert.Nil(t, ToDate(""))
	assert.Nil(t, ToDate("  "))
	assert.Nil(t, ToDate("yesterday"))
	assert.Nil(t, ToDate(nil))
}

func TestToDateNumbers(t *testing.T) {
	// Unix seconds.
	got := ToDate(float64(1756218600))
	require.NotNil(t, got)
	assert.Equal(t, int64(1756218600), got.Unix())

	// Agents commonly send epoch milliseconds.
	got = ToDate(float64(1756218600000))
	require.NotNil(t, got)
	assert.Equal(t, int64(1756218600), got.Unix())

	assert.Nil(t, ToDate(float64(0)))
}

func TestToBoolean(t *testing.T) {
	tr, fa := true, false
	tests := []struct {
		name string
		in   interface{}
		want *bool
	}{
		{"nil", nil, nil},
		{"true", true, &tr},
		{"false", false, &fa},
		{"yes", "yes", &tr},
		{"YES", "YES", &tr},
		{"y", "y", &tr},
		{"one string", "1", &tr},
		{"true string", "true", &tr},
		{"no", "no", &fa},
		{"random string", "whatever", &fa},
		{"empty string", "", nil},
		{"blank string", "  ", nil},
		{"one number", float64(1), &tr},
		{"zero number", float64(0), &fa},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToBoolean(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
