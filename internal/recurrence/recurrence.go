package recurrence

import (
	"fmt"
	"time"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
)

// Validate rejects malformed specs at creation time so the runner never has
// to cope with them. A nil spec (non-recurring email) is valid.
func Validate(spec *model.RecurrenceSpec) error {
	if spec == nil || spec.Pattern == model.PatternNone {
		return nil
	}
	switch spec.Pattern {
	case model.PatternDaily, model.PatternWeekly, model.PatternMonthly:
	default:
		return fmt.Errorf("unknown recurrence pattern %q", spec.Pattern)
	}
	if spec.Interval <= 0 {
		return fmt.Errorf("recurrence interval must be > 0, got %d", spec.Interval)
	}
	if spec.MaxOccurrences != nil && *spec.MaxOccurrences <= 0 {
		return fmt.Errorf("maxOccurrences must be > 0, got %d", *spec.MaxOccurrences)
	}
	return nil
}

// Next advances from by interval units of pattern. Monthly keeps the
// day-of-month and clamps to the last day of shorter target months, so a
// series anchored on the 31st fires on Feb 28 (29 in leap years) rather than
// sliding into March.
func Next(from time.Time, pattern model.Pattern, interval int) time.Time {
	switch pattern {
	case model.PatternDaily:
		return from.AddDate(0, 0, interval)
	case model.PatternWeekly:
		return from.AddDate(0, 0, interval*7)
	case model.PatternMonthly:
		return addMonthsClamped(from, interval)
	default:
		return from
	}
}

// ShouldContinue reports whether a series keeps its scheduling slot after a
// firing that brought the count to updatedCount.
func ShouldContinue(spec *model.RecurrenceSpec, updatedCount int, from time.Time) bool {
	if spec == nil || spec.Pattern == model.PatternNone {
		return false
	}
	if spec.MaxOccurrences != nil && updatedCount >= *spec.MaxOccurrences {
		return false
	}
	if spec.EndDate != nil && Next(from, spec.Pattern, spec.Interval).After(*spec.EndDate) {
		return false
	}
	return true
}

func addMonthsClamped(from time.Time, months int) time.Time {
	y, m, d := from.Date()
	first := time.Date(y, m+time.Month(months), 1,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())

	if last := daysInMonth(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
