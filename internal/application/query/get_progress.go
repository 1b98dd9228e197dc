// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/analytics"
	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ProgressReader is the read side of the progress repository. Loads return
// a usable zero value alongside a storage error, so display queries can
// degrade instead of failing.
type ProgressReader interface {
	LoadStreak(ctx context.Context, userID string) (*progress.StreakRecord, error)
	LoadCounters(ctx context.Context, userID string) (progress.UsageCounters, error)
	LoadBadges(ctx context.Context, userID string) ([]badge.Badge, error)
	LoadQuizHistory(ctx context.Context, userID string) ([]analytics.QuizRecord, error)
	LoadSessionHistory(ctx context.Context, userID string) ([]analytics.SessionRecord, error)
	LoadSessions(ctx context.Context, groupID string) (reminder.Sessions, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// The progress dashboard: streak, usage counters and the badge shelf.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery contains the parameters of a progress lookup.
type GetProgressQuery struct {
	// UserID is the user whose progress is shown.
	UserID string
}

// Validate validates the query.
func (q GetProgressQuery) Validate() error {
	if err := shared.ValidateUserID(q.UserID); err != nil {
		return err
	}
	return nil
}

// ProgressDTO is the dashboard view of a user's progression.
type ProgressDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Streak
	// ─────────────────────────────────────────────────────────────────────────

	// CurrentStreak is the number of consecutive active days.
	CurrentStreak int `json:"currentStreak"`

	// BestStreak is the longest streak ever reached.
	BestStreak int `json:"bestStreak"`

	// LastActivityDate is empty for a user who was never active.
	LastActivityDate *timeutil.Date `json:"lastActivityDate,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Usage and badges
	// ─────────────────────────────────────────────────────────────────────────

	Counters progress.UsageCounters `json:"counters"`

	// Badges is the full catalog in announcement order, earned or not.
	Badges []badge.Badge `json:"badges"`

	// EarnedCount is how many badges are earned.
	EarnedCount int `json:"earnedCount"`

	// TotalBadges is the catalog size.
	TotalBadges int `json:"totalBadges"`

	// ─────────────────────────────────────────────────────────────────────────
	// Metadata
	// ─────────────────────────────────────────────────────────────────────────

	// Degraded is true if some state could not be read and defaults are
	// shown in its place.
	Degraded bool `json:"degraded,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// GetProgressHandler handles the GetProgressQuery.
type GetProgressHandler struct {
	repo   ProgressReader
	clock  timeutil.Clock
	logger *logger.Logger
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(repo ProgressReader, clock timeutil.Clock, log *logger.Logger) *GetProgressHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressHandler{repo: repo, clock: clock, logger: log}
}

// Handle executes the query. Storage failures are logged and reported
// through Degraded; the call itself only fails on invalid input.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_progress: validation failed: %w", err)
	}

	var failures []error

	streak, err := h.repo.LoadStreak(ctx, q.UserID)
	if err != nil {
		failures = append(failures, err)
	}
	counters, err := h.repo.LoadCounters(ctx, q.UserID)
	if err != nil {
		failures = append(failures, err)
	}
	badges, err := h.repo.LoadBadges(ctx, q.UserID)
	if err != nil {
		failures = append(failures, err)
	}

	dto := &ProgressDTO{
		Counters:    counters,
		Badges:      badges,
		EarnedCount: badge.EarnedCount(badges),
		TotalBadges: len(badge.Catalog()),
		Degraded:    len(failures) > 0,
		GeneratedAt: h.clock.Now(),
	}
	if streak != nil {
		dto.CurrentStreak = streak.Current
		dto.BestStreak = streak.Best
		if !streak.LastActivityDate.IsZero() {
			last := streak.LastActivityDate
			dto.LastActivityDate = &last
		}
	}

	if dto.Degraded {
		h.logger.Warn("progress served with defaults",
			logger.UserID(q.UserID),
			logger.Int("failed_reads", len(failures)),
			logger.Err(failures[0]),
		)
	}

	return dto, nil
}
