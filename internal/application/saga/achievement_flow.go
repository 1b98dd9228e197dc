// Package saga contains multi-step business processes that several
// commands share.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// Flow: Load Badges → Evaluate Catalog → Grant (single write) → Build Events
//
// The flow runs inside the caller's per-user critical section, after the
// streak and counter writes, so every rule sees the freshly written state.
// Events are returned, not published: the caller publishes them once all
// of its writes have succeeded.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository is the badge part of the progress repository.
type BadgeRepository interface {
	LoadBadges(ctx context.Context, userID string) ([]badge.Badge, error)
	SaveBadges(ctx context.Context, userID string, badges []badge.Badge) error
}

// AchievementCheckInput contains the state the catalog is evaluated against.
type AchievementCheckInput struct {
	// UserID - the user to check badges for.
	UserID string

	// Streak - the user's streak after the triggering action.
	Streak progress.StreakRecord

	// Counters - the user's usage counters after the triggering action.
	Counters progress.UsageCounters

	// Timestamp - when the triggering action occurred.
	Timestamp time.Time
}

// Validate checks if the input is valid.
func (i AchievementCheckInput) Validate() error {
	if i.UserID == "" {
		return errors.New("achievement_flow: user ID is required")
	}
	return nil
}

// AchievementFlowResult contains the result of badge processing.
type AchievementFlowResult struct {
	// UserID - the user who received badges.
	UserID string

	// NewBadges - badges awarded by this run, in catalog order.
	NewBadges []badge.Badge

	// Badges - the full badge list after the run.
	Badges []badge.Badge

	// Events - one badge.earned event per new badge, in catalog order.
	Events []shared.Event
}

// HasNewBadges returns true if any badge was awarded.
func (r *AchievementFlowResult) HasNewBadges() bool {
	return len(r.NewBadges) > 0
}

// AchievementFlowStep represents a step in the achievement flow.
type AchievementFlowStep string

const (
	StepLoadBadges    AchievementFlowStep = "load_badges"
	StepEvaluate      AchievementFlowStep = "evaluate"
	StepGrantBadges   AchievementFlowStep = "grant_badges"
	StepBuildEvents   AchievementFlowStep = "build_events"
	StepFlowCompleted AchievementFlowStep = "complete"
)

// achievementFlowState tracks the current state of one run.
type achievementFlowState struct {
	CurrentStep AchievementFlowStep
	Input       AchievementCheckInput
	Existing    []badge.Badge
	Evaluation  badge.Evaluation
	Events      []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowSaga evaluates the badge catalog and grants every newly
// satisfied badge exactly once.
type AchievementFlowSaga struct {
	badges  BadgeRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewAchievementFlowSaga creates a new achievement flow saga.
func NewAchievementFlowSaga(badges BadgeRepository, log *logger.Logger, m *metrics.Metrics) *AchievementFlowSaga {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &AchievementFlowSaga{
		badges:  badges,
		logger:  log.With(logger.Component("achievement_flow")),
		metrics: m,
	}
}

// Execute runs the flow. A failure to load or persist badges aborts it
// with no badge granted, so the next action re-evaluates the same rules.
func (s *AchievementFlowSaga) Execute(ctx context.Context, input AchievementCheckInput) (*AchievementFlowResult, error) {
	state := &achievementFlowState{
		CurrentStep: StepLoadBadges,
		Input:       input,
	}

	if err := input.Validate(); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 1: Load persisted badges
	existing, err := s.badges.LoadBadges(ctx, input.UserID)
	if err != nil {
		return nil, s.wrapError(state, err)
	}
	state.Existing = existing

	// Step 2: Evaluate the catalog
	state.CurrentStep = StepEvaluate
	state.Evaluation = badge.Evaluate(state.Existing, input.Streak, input.Counters, input.Timestamp)

	result := &AchievementFlowResult{
		UserID: input.UserID,
		Badges: state.Evaluation.Badges,
	}
	if !state.Evaluation.Changed() {
		return result, nil
	}

	// Step 3: Grant, all new badges in one write
	state.CurrentStep = StepGrantBadges
	if err := s.badges.SaveBadges(ctx, input.UserID, state.Evaluation.Badges); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 4: Build events
	state.CurrentStep = StepBuildEvents
	for _, b := range state.Evaluation.NewlyEarned {
		state.Events = append(state.Events,
			shared.NewBadgeEarnedEvent(input.UserID, string(b.ID), b.Name, b.Description, input.Timestamp))
		s.metrics.BadgesAwarded.WithLabelValues(string(b.ID)).Inc()
		s.logger.Info("badge earned", logger.UserID(input.UserID), logger.BadgeID(string(b.ID)))
	}

	state.CurrentStep = StepFlowCompleted
	result.NewBadges = state.Evaluation.NewlyEarned
	result.Events = state.Events
	return result, nil
}

func (s *AchievementFlowSaga) wrapError(state *achievementFlowState, err error) error {
	return fmt.Errorf("achievement_flow: step %s: %w", state.CurrentStep, err)
}
