package timefmt_test

import (
	"taskflow/internal/timefmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	tests := []struct {
		seconds  int64
		expected string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{65, "00:01:05"},
		{3661, "01:01:01"},
		{-5, "00:00:00"},
		{360000, "100:00:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, timefmt.Clock(tt.seconds))
	}
}

func TestDetailed(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"seconds only", 45, "45s"},
		{"whole minutes", 120, "2m"},
		{"minutes and seconds", 65, "1m 5s"},
		{"hours minutes seconds", 3661, "1h 1m 1s"},
		{"whole hours", 7200, "2h"},
		{"hours and seconds", 3605, "1h 5s"},
		{"seconds dropped after ten hours", 36061, "10h 1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, timefmt.Detailed(tt.seconds))
		})
	}
}

func TestHoursMinutes(t *testing.T) {
	assert.Equal(t, "0m", timefmt.HoursMinutes(30))
	assert.Equal(t, "5m", timefmt.HoursMinutes(300))
	assert.Equal(t, "1h 5m", timefmt.HoursMinutes(3900))
	assert.Equal(t, "2h 0m", timefmt.HoursMinutes(7200))
}
