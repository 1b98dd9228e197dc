// Package badge contains the fixed achievement catalog and the evaluation
// rules that award each badge exactly once.
package badge

import (
	"github.com/studybuddy/progress-engine/internal/domain/progress"
)

// ID is the stable identifier of a catalog badge.
type ID string

const (
	FirstQuiz        ID = "first-quiz"
	AIEnthusiast     ID = "ai-enthusiast"
	FireStarter      ID = "fire-starter"
	DedicatedScholar ID = "dedicated-scholar"
	SocialButterfly  ID = "social-butterfly"
	QuizMaster       ID = "quiz-master"
	DocumentWizard   ID = "document-wizard"
	Legendary        ID = "legendary"
)

// String returns the badge ID.
func (id ID) String() string {
	return string(id)
}

// Rule is a predicate over the latest streak and counters.
type Rule func(streak progress.StreakRecord, counters progress.UsageCounters) bool

// Definition is a catalog entry. Rules are evaluated, never stored.
type Definition struct {
	ID          ID
	Name        string
	Description string
	Rule        Rule
}

// catalog is fixed at compile time; its order is the announcement order.
var catalog = []Definition{
	{
		ID:          FirstQuiz,
		Name:        "First Quiz",
		Description: "Complete your first quiz",
		Rule:        counterAtLeast(progress.CounterQuiz, 1),
	},
	{
		ID:          AIEnthusiast,
		Name:        "AI Enthusiast",
		Description: "Chat with the AI tutor 5 times",
		Rule:        counterAtLeast(progress.CounterAIUsage, 5),
	},
	{
		ID:          FireStarter,
		Name:        "Fire Starter",
		Description: "Reach a 5-day study streak",
		Rule:        streakAtLeast(5),
	},
	{
		ID:          DedicatedScholar,
		Name:        "Dedicated Scholar",
		Description: "Reach a 30-day study streak",
		Rule:        streakAtLeast(30),
	},
	{
		ID:          SocialButterfly,
		Name:        "Social Butterfly",
		Description: "Join 10 study sessions",
		Rule:        counterAtLeast(progress.CounterSession, 10),
	},
	{
		ID:          QuizMaster,
		Name:        "Quiz Master",
		Description: "Complete 10 quizzes",
		Rule:        counterAtLeast(progress.CounterQuiz, 10),
	},
	{
		ID:          DocumentWizard,
		Name:        "Document Wizard",
		Description: "Summarize 5 documents",
		Rule:        counterAtLeast(progress.CounterDocSummarize, 5),
	},
	{
		ID:          Legendary,
		Name:        "Legendary",
		Description: "Reach a 100-day study streak",
		Rule:        streakAtLeast(100),
	},
}

// Catalog returns a copy of the badge catalog in announcement order.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog definition for id.
func Lookup(id ID) (Definition, bool) {
	for _, def := range catalog {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

func counterAtLeast(c progress.Counter, n int) Rule {
	return func(_ progress.StreakRecord, counters progress.UsageCounters) bool {
		return counters.Get(c) >= n
	}
}

func streakAtLeast(n int) Rule {
	return func(streak progress.StreakRecord, _ progress.UsageCounters) bool {
		return streak.Current >= n
	}
}
