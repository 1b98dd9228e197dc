package badge

import (
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/progress"
)

// Badge is the persisted state of one catalog entry for a user.
// Once Earned is true it never reverts.
type Badge struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earnedAt,omitempty"`
}

// FromDefinition returns an unearned badge for def.
func FromDefinition(def Definition) Badge {
	return Badge{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
	}
}

// Merge reconciles persisted badge state with the catalog.
// The result holds exactly one badge per catalog entry, in catalog order.
// Unknown IDs are dropped and missing entries start unearned. Names and
// descriptions always come from the catalog. An earned flag in persisted
// state is kept even if the same ID appears again unearned.
func Merge(persisted []Badge) []Badge {
	earned := make(map[ID]Badge, len(persisted))
	for _, b := range persisted {
		if prev, ok := earned[b.ID]; ok && prev.Earned {
			continue
		}
		earned[b.ID] = b
	}

	out := make([]Badge, 0, len(catalog))
	for _, def := range catalog {
		b := FromDefinition(def)
		if stored, ok := earned[def.ID]; ok && stored.Earned {
			b.Earned = true
			b.EarnedAt = stored.EarnedAt
		}
		out = append(out, b)
	}
	return out
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	// Badges is the full updated badge list, ready to persist.
	Badges []Badge
	// NewlyEarned lists badges awarded by this call, in catalog order.
	NewlyEarned []Badge
}

// Changed reports whether any badge was awarded.
func (e Evaluation) Changed() bool {
	return len(e.NewlyEarned) > 0
}

// Evaluate tests every unearned badge against streak and counters.
// Satisfied badges are marked earned at the given instant and all of them
// are returned, so simultaneous unlocks surface together. Badges already
// earned are neither re-tested nor returned again. The input slice is not
// modified.
func Evaluate(current []Badge, streak progress.StreakRecord, counters progress.UsageCounters, at time.Time) Evaluation {
	badges := Merge(current)
	var newly []Badge

	for i, b := range badges {
		if b.Earned {
			continue
		}
		def, ok := Lookup(b.ID)
		if !ok || !def.Rule(streak, counters) {
			continue
		}
		earnedAt := at
		b.Earned = true
		b.EarnedAt = &earnedAt
		badges[i] = b
		newly = append(newly, b)
	}

	return Evaluation{Badges: badges, NewlyEarned: newly}
}

// EarnedCount returns how many badges in list are earned.
func EarnedCount(list []Badge) int {
	n := 0
	for _, b := range list {
		if b.Earned {
			n++
		}
	}
	return n
}
