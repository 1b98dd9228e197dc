package reminder

import (
	"sort"
	"time"
)

// Arming is a reminder to schedule as a one-shot timer.
type Arming struct {
	Session ScheduledSession
	FireAt  time.Time
	StartAt time.Time
}

// Plan is the outcome of PlanReminders.
type Plan struct {
	// Arm holds sessions whose reminder point is still in the future.
	Arm []Arming
	// CatchUp holds sessions whose reminder point passed while the session
	// itself has not started yet. They fire immediately.
	CatchUp []Arming
	// Archived holds unfired sessions whose start already passed. They get
	// no reminder.
	Archived []ScheduledSession
	// Invalid holds sessions whose date/time cannot be parsed.
	Invalid []ScheduledSession
}

// PlanReminders decides, for every session without a fired reminder, how
// its reminder is handled at instant now:
//
//   - start - lead >  now:          arm a timer at start - lead
//   - start - lead <= now < start:  catch up, fire immediately
//   - start <= now:                 archived, no reminder
//
// Sessions already marked ReminderFired are skipped. Each list is sorted by
// fire time.
func PlanReminders(sessions []ScheduledSession, now time.Time, lead time.Duration, loc *time.Location) Plan {
	var plan Plan

	for _, s := range sessions {
		if s.ReminderFired {
			continue
		}
		start, err := s.StartsAt(loc)
		if err != nil {
			plan.Invalid = append(plan.Invalid, s)
			continue
		}
		fireAt := start.Add(-lead)

		switch {
		case fireAt.After(now):
			plan.Arm = append(plan.Arm, Arming{Session: s, FireAt: fireAt, StartAt: start})
		case start.After(now):
			plan.CatchUp = append(plan.CatchUp, Arming{Session: s, FireAt: now, StartAt: start})
		default:
			plan.Archived = append(plan.Archived, s)
		}
	}

	sortArmings(plan.Arm)
	sortArmings(plan.CatchUp)
	return plan
}

// MarkFired returns a copy of sessions with id flagged as reminded.
// The second result is false if the session is missing or already fired.
func MarkFired(sessions Sessions, id string) (Sessions, bool) {
	s, ok := sessions.Find(id)
	if !ok || s.ReminderFired {
		return sessions, false
	}
	s.ReminderFired = true
	out, err := sessions.Replace(s)
	if err != nil {
		return sessions, false
	}
	return out, true
}

func sortArmings(list []Arming) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].FireAt.Before(list[j].FireAt)
	})
}
