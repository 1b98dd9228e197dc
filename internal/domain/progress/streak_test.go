package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

func day(s string) timeutil.Date { return timeutil.MustParseDate(s) }

func TestLogActivity_FirstEverActivity(t *testing.T) {
	u := LogActivity(nil, day("2024-01-01"))

	assert.Equal(t, OutcomeStarted, u.Outcome)
	assert.Equal(t, StreakRecord{Current: 1, Best: 1, LastActivityDate: day("2024-01-01")}, u.Record)
	assert.True(t, u.Increased())
}

func TestLogActivity_SameDayIsIdempotent(t *testing.T) {
	d := day("2024-03-10")
	start := &StreakRecord{Current: 4, Best: 7, LastActivityDate: d.Yesterday()}

	once := LogActivity(start, d)
	twice := LogActivity(&once.Record, d)
	thrice := LogActivity(&twice.Record, d)

	assert.Equal(t, once.Record, twice.Record)
	assert.Equal(t, once.Record, thrice.Record)
	assert.Equal(t, OutcomeUnchanged, twice.Outcome)
	assert.False(t, twice.Changed())
}

func TestLogActivity_Continuation(t *testing.T) {
	d := day("2024-05-01")
	u := LogActivity(&StreakRecord{Current: 3, Best: 5, LastActivityDate: d}, d.AddDays(1))

	assert.Equal(t, OutcomeContinued, u.Outcome)
	assert.Equal(t, StreakRecord{Current: 4, Best: 5, LastActivityDate: d.AddDays(1)}, u.Record)
	assert.Equal(t, 3, u.Previous)
}

func TestLogActivity_ContinuationRaisesBest(t *testing.T) {
	d := day("2024-05-01")
	u := LogActivity(&StreakRecord{Current: 5, Best: 5, LastActivityDate: d}, d.AddDays(1))

	assert.Equal(t, 6, u.Record.Current)
	assert.Equal(t, 6, u.Record.Best)
}

func TestLogActivity_ResetOnGap(t *testing.T) {
	d := day("2024-05-01")
	u := LogActivity(&StreakRecord{Current: 3, Best: 5, LastActivityDate: d}, d.AddDays(3))

	assert.Equal(t, OutcomeRestarted, u.Outcome)
	assert.Equal(t, StreakRecord{Current: 1, Best: 5, LastActivityDate: d.AddDays(3)}, u.Record)
	assert.False(t, u.Increased())
}

func TestLogActivity_DateBeforeLastActivityRestarts(t *testing.T) {
	d := day("2024-05-10")
	u := LogActivity(&StreakRecord{Current: 3, Best: 5, LastActivityDate: d}, d.AddDays(-2))

	assert.Equal(t, OutcomeRestarted, u.Outcome)
	assert.Equal(t, StreakRecord{Current: 1, Best: 5, LastActivityDate: d.AddDays(-2)}, u.Record)
}

func TestLogActivity_AcrossMonthAndYearBoundaries(t *testing.T) {
	u := LogActivity(&StreakRecord{Current: 2, Best: 2, LastActivityDate: day("2023-12-31")}, day("2024-01-01"))
	assert.Equal(t, OutcomeContinued, u.Outcome)

	u = LogActivity(&StreakRecord{Current: 2, Best: 2, LastActivityDate: day("2024-02-28")}, day("2024-02-29"))
	assert.Equal(t, OutcomeContinued, u.Outcome)
}

func TestLogActivity_BestIsMonotonic(t *testing.T) {
	offsets := []int{0, 1, 1, 2, 5, 6, 7, 7, 20, 21, 19, 22, 23, 24, 25, 26}
	base := day("2024-01-01")

	var rec *StreakRecord
	prevBest := 0
	for _, off := range offsets {
		u := LogActivity(rec, base.AddDays(off))
		r := u.Record
		rec = &r

		assert.GreaterOrEqual(t, rec.Best, prevBest)
		assert.GreaterOrEqual(t, rec.Best, rec.Current)
		assert.True(t, rec.Valid())
		prevBest = rec.Best
	}
	assert.Equal(t, 5, rec.Current)
	assert.Equal(t, 5, rec.Best)
}

func TestCheckOnLoad(t *testing.T) {
	today := day("2024-06-15")

	tests := []struct {
		name     string
		record   *StreakRecord
		outcome  StreakOutcome
		expected int
	}{
		{"no record", nil, OutcomeUnchanged, 0},
		{"active today", &StreakRecord{Current: 3, Best: 3, LastActivityDate: today}, OutcomeUnchanged, 3},
		{"active yesterday", &StreakRecord{Current: 3, Best: 3, LastActivityDate: today.Yesterday()}, OutcomeUnchanged, 3},
		{"two days ago", &StreakRecord{Current: 3, Best: 9, LastActivityDate: today.AddDays(-2)}, OutcomeDecayed, 0},
		{"already decayed", &StreakRecord{Current: 0, Best: 9, LastActivityDate: today.AddDays(-10)}, OutcomeUnchanged, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := CheckOnLoad(tt.record, today)
			assert.Equal(t, tt.outcome, u.Outcome)
			assert.Equal(t, tt.expected, u.Record.Current)
			if tt.record != nil {
				assert.Equal(t, tt.record.Best, u.Record.Best)
			}
		})
	}
}

func TestCheckOnLoad_ThenActivityStartsFresh(t *testing.T) {
	today := day("2024-06-15")
	decayed := CheckOnLoad(&StreakRecord{Current: 8, Best: 8, LastActivityDate: today.AddDays(-4)}, today)
	assert.Equal(t, 8, decayed.Previous)

	u := LogActivity(&decayed.Record, today)
	assert.Equal(t, StreakRecord{Current: 1, Best: 8, LastActivityDate: today}, u.Record)
}

func TestCheckOnLoad_DoesNotBreakPendingContinuation(t *testing.T) {
	today := day("2024-06-15")
	rec := &StreakRecord{Current: 4, Best: 4, LastActivityDate: today.Yesterday()}

	checked := CheckOnLoad(rec, today)
	u := LogActivity(&checked.Record, today)

	assert.Equal(t, OutcomeContinued, u.Outcome)
	assert.Equal(t, 5, u.Record.Current)
}
