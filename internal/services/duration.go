package services

import "time"

// Duration is a calendar-aware span of years, months and days
type Duration struct {
	Years  int `json:"years"`
	Months int `json:"months"`
	Days   int `json:"days"`
}

// RelationshipDuration returns the whole days between start and now and the
// same span broken into calendar units. Both are zero when start is after now.
func RelationshipDuration(start, now time.Time) (int, Duration) {
	s := dateOf(start)
	n := dateOf(now)
	if !n.After(s) {
		return 0, Duration{}
	}

	days := int(n.Sub(s).Hours() / 24)

	months := (n.Year()-s.Year())*12 + int(n.Month()) - int(s.Month())
	if n.Day() < s.Day() {
		months--
	}
	anchor := addMonths(s, months)
	rest := int(n.Sub(anchor).Hours() / 24)

	return days, Duration{Years: months / 12, Months: months % 12, Days: rest}
}

// addMonths adds whole months, clamping the day to the target month's length
// so Jan 31 plus one month is the last day of February.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := min(t.Day(), daysIn(first.Year(), first.Month()))
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
