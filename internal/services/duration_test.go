package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRelationshipDuration(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		now      time.Time
		wantDays int
		want     Duration
	}{
		{"same day", day(2024, 3, 1), day(2024, 3, 1).Add(20 * time.Hour), 0, Duration{}},
		{"future start", day(2027, 1, 1), day(2026, 1, 1), 0, Duration{}},
		{"one day", day(2024, 3, 1), day(2024, 3, 2), 1, Duration{Days: 1}},
		{"one month", day(2024, 3, 1), day(2024, 4, 1), 31, Duration{Months: 1}},
		{"leap year", day(2024, 2, 14), day(2025, 2, 14), 366, Duration{Years: 1}},
		{"mixed", day(2023, 1, 10), day(2025, 3, 15), 795, Duration{Years: 2, Months: 2, Days: 5}},
		{"day before anniversary", day(2024, 3, 15), day(2025, 3, 14), 364, Duration{Months: 11, Days: 27}},
		{"month end clamps", day(2024, 1, 31), day(2024, 3, 1), 30, Duration{Months: 1, Days: 1}},
		{"time of day ignored", day(2024, 3, 1).Add(23 * time.Hour), day(2024, 3, 2).Add(time.Hour), 1, Duration{Days: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, got := RelationshipDuration(tt.start, tt.now)
			assert.Equal(t, tt.wantDays, days)
			assert.Equal(t, tt.want, got)
		})
	}
}
