// Package progress contains the per-user progression state of StudyBuddy:
// the daily activity streak, usage counters and the store contract that
// persists them. This is a pure domain layer; it has no infrastructure
// dependencies.
package progress

import (
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK RECORD
// ══════════════════════════════════════════════════════════════════════════════

// StreakRecord is the persisted daily activity streak of a user.
// Invariant: Best >= Current >= 0.
type StreakRecord struct {
	Current          int           `json:"current"`
	Best             int           `json:"best"`
	LastActivityDate timeutil.Date `json:"lastActivityDate"`
}

// Valid reports whether the record satisfies its invariants.
func (r StreakRecord) Valid() bool {
	return r.Current >= 0 && r.Best >= r.Current && !r.LastActivityDate.IsZero()
}

// StreakOutcome describes what a streak operation did.
type StreakOutcome string

const (
	// OutcomeStarted: no record existed, a new streak of 1 was created.
	OutcomeStarted StreakOutcome = "started"
	// OutcomeContinued: activity on the day after the last one.
	OutcomeContinued StreakOutcome = "continued"
	// OutcomeUnchanged: nothing to do (same day, or load check on a live streak).
	OutcomeUnchanged StreakOutcome = "unchanged"
	// OutcomeRestarted: activity after a gap, streak restarted at 1.
	OutcomeRestarted StreakOutcome = "restarted"
	// OutcomeDecayed: load check found a broken streak and zeroed it.
	OutcomeDecayed StreakOutcome = "decayed"
)

// StreakUpdate is the result of a streak operation. It describes the change
// and leaves announcing it to the caller.
type StreakUpdate struct {
	Record   StreakRecord
	Outcome  StreakOutcome
	Previous int // Current before the operation
}

// Changed reports whether Record differs from the input and must be persisted.
func (u StreakUpdate) Changed() bool {
	return u.Outcome != OutcomeUnchanged
}

// Increased reports whether the streak counter went up.
func (u StreakUpdate) Increased() bool {
	return u.Outcome == OutcomeStarted || u.Outcome == OutcomeContinued
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// LogActivity advances the streak for an activity on today.
//
//   - no record:               {1, 1, today}
//   - last == today:           unchanged
//   - last == yesterday:       current+1, best = max(best, current)
//   - any other date:          current = 1, best kept
//
// Calling it repeatedly with the same date yields the same record as
// calling it once.
func LogActivity(prev *StreakRecord, today timeutil.Date) StreakUpdate {
	if prev == nil || prev.LastActivityDate.IsZero() {
		return StreakUpdate{
			Record:  StreakRecord{Current: 1, Best: maxInt(1, bestOf(prev)), LastActivityDate: today},
			Outcome: OutcomeStarted,
		}
	}

	rec := normalize(*prev)
	update := StreakUpdate{Record: rec, Previous: rec.Current}

	switch {
	case rec.LastActivityDate.Equal(today):
		update.Outcome = OutcomeUnchanged

	case rec.LastActivityDate.Equal(today.Yesterday()):
		rec.Current++
		rec.Best = maxInt(rec.Best, rec.Current)
		rec.LastActivityDate = today
		update.Record = rec
		update.Outcome = OutcomeContinued

	default:
		rec.Current = 1
		rec.Best = maxInt(rec.Best, 1)
		rec.LastActivityDate = today
		update.Record = rec
		update.Outcome = OutcomeRestarted
	}

	return update
}

// CheckOnLoad runs the passive decay check performed once per session start.
// A streak whose last activity is today or yesterday is left alone so that
// today's activity can still continue it. Anything older zeroes Current
// and keeps Best. A missing record, or one already at zero, is unchanged.
//
// It must not be called on every activity: doing so would zero a streak
// that LogActivity was about to continue.
func CheckOnLoad(prev *StreakRecord, today timeutil.Date) StreakUpdate {
	if prev == nil || prev.LastActivityDate.IsZero() {
		return StreakUpdate{Outcome: OutcomeUnchanged}
	}

	rec := normalize(*prev)
	update := StreakUpdate{Record: rec, Previous: rec.Current, Outcome: OutcomeUnchanged}

	last := rec.LastActivityDate
	if last.Equal(today) || last.Equal(today.Yesterday()) {
		return update
	}
	if rec.Current == 0 {
		return update
	}

	rec.Current = 0
	update.Record = rec
	update.Outcome = OutcomeDecayed
	return update
}

// normalize repairs a record read from storage so that Best >= Current >= 0.
func normalize(r StreakRecord) StreakRecord {
	if r.Current < 0 {
		r.Current = 0
	}
	if r.Best < r.Current {
		r.Best = r.Current
	}
	return r
}

func bestOf(r *StreakRecord) int {
	if r == nil {
		return 0
	}
	return r.Best
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
