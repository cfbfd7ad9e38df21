package recurrence

import (
	"testing"
	"time"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
)

func TestNext_Daily(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	got := Next(from, model.PatternDaily, 3)
	want := time.Date(2026, 3, 13, 9, 30, 0, 0, time.UTC)

	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNext_WeeklyIntervalTwoIsFourteenDays(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	got := Next(from, model.PatternWeekly, 2)

	if diff := got.Sub(from); diff != 14*24*time.Hour {
		t.Fatalf("expected exactly 14 days, got %v", diff)
	}
}

func TestNext_MonthlyClampsToEndOfMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		from     time.Time
		interval int
		want     time.Time
	}{
		{
			name:     "Jan 31 into non-leap Feb",
			from:     time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC),
			interval: 1,
			want:     time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "Jan 31 into leap Feb",
			from:     time.Date(2028, 1, 31, 10, 0, 0, 0, time.UTC),
			interval: 1,
			want:     time.Date(2028, 2, 29, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "May 31 into 30-day June",
			from:     time.Date(2026, 5, 31, 10, 0, 0, 0, time.UTC),
			interval: 1,
			want:     time.Date(2026, 6, 30, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "mid-month is untouched",
			from:     time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
			interval: 2,
			want:     time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "crosses year boundary",
			from:     time.Date(2026, 11, 30, 10, 0, 0, 0, time.UTC),
			interval: 3,
			want:     time.Date(2027, 2, 28, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Next(tc.from, model.PatternMonthly, tc.interval)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestShouldContinue_MaxOccurrences(t *testing.T) {
	t.Parallel()

	max := 3
	spec := &model.RecurrenceSpec{
		Pattern:        model.PatternDaily,
		Interval:       1,
		MaxOccurrences: &max,
	}
	from := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for _, count := range []int{1, 2} {
		if !ShouldContinue(spec, count, from) {
			t.Fatalf("expected continue at count=%d", count)
		}
	}
	if ShouldContinue(spec, 3, from) {
		t.Fatalf("expected stop at count=3")
	}
}

func TestShouldContinue_EndDate(t *testing.T) {
	t.Parallel()

	end := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	spec := &model.RecurrenceSpec{
		Pattern:  model.PatternDaily,
		Interval: 7,
		EndDate:  &end,
	}

	within := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	if ShouldContinue(spec, 1, within) {
		t.Fatalf("expected stop: next occurrence would pass the end date")
	}

	spec.Interval = 1
	if !ShouldContinue(spec, 1, within) {
		t.Fatalf("expected continue: next occurrence is before the end date")
	}
}

func TestShouldContinue_NonePatternNeverContinues(t *testing.T) {
	t.Parallel()

	from := time.Now()
	if ShouldContinue(nil, 1, from) {
		t.Fatalf("nil spec must not continue")
	}
	if ShouldContinue(&model.RecurrenceSpec{Pattern: model.PatternNone, Interval: 1}, 1, from) {
		t.Fatalf("pattern=none must not continue")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := Validate(nil); err != nil {
		t.Fatalf("nil spec should be valid, got %v", err)
	}
	if err := Validate(&model.RecurrenceSpec{Pattern: model.PatternWeekly, Interval: 2}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := Validate(&model.RecurrenceSpec{Pattern: model.PatternWeekly, Interval: 0}); err == nil {
		t.Fatalf("expected error for interval=0")
	}
	if err := Validate(&model.RecurrenceSpec{Pattern: "yearly", Interval: 1}); err == nil {
		t.Fatalf("expected error for unknown pattern")
	}
	zero := 0
	if err := Validate(&model.RecurrenceSpec{Pattern: model.PatternDaily, Interval: 1, MaxOccurrences: &zero}); err == nil {
		t.Fatalf("expected error for maxOccurrences=0")
	}
}
