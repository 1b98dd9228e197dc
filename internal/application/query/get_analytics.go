package query

import (
	"context"
	"fmt"

	"github.com/studybuddy/progress-engine/internal/domain/analytics"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ANALYTICS QUERY
// Derived statistics over the user's quiz and session history. Nothing
// here is persisted; every call recomputes from history.
// ══════════════════════════════════════════════════════════════════════════════

// MaxRecentLimit bounds the recency list a caller may ask for.
const MaxRecentLimit = 100

// GetAnalyticsQuery contains the parameters of an analytics lookup.
type GetAnalyticsQuery struct {
	// UserID is the user whose history is aggregated.
	UserID string

	// RecentLimit is the recency list length (default 10, max 100).
	RecentLimit int
}

// Validate validates the query and applies defaults.
func (q *GetAnalyticsQuery) Validate() error {
	if err := shared.ValidateUserID(q.UserID); err != nil {
		return err
	}
	if q.RecentLimit < 0 {
		return shared.NewDomainError("analytics", "Validate", shared.ErrValueOutOfRange, "recent limit cannot be negative")
	}
	if q.RecentLimit == 0 {
		q.RecentLimit = analytics.DefaultRecentLimit
	}
	if q.RecentLimit > MaxRecentLimit {
		q.RecentLimit = MaxRecentLimit
	}
	return nil
}

// AnalyticsDTO is the analytics view of a user.
type AnalyticsDTO struct {
	analytics.Snapshot

	// Degraded is true if history could not be read.
	Degraded bool `json:"degraded,omitempty"`
}

// GetAnalyticsHandler handles the GetAnalyticsQuery.
type GetAnalyticsHandler struct {
	repo   ProgressReader
	logger *logger.Logger
}

// NewGetAnalyticsHandler creates a new GetAnalyticsHandler.
func NewGetAnalyticsHandler(repo ProgressReader, log *logger.Logger) *GetAnalyticsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetAnalyticsHandler{repo: repo, logger: log}
}

// Handle executes the query.
func (h *GetAnalyticsHandler) Handle(ctx context.Context, q GetAnalyticsQuery) (*AnalyticsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_analytics: validation failed: %w", err)
	}

	degraded := false
	quizzes, err := h.repo.LoadQuizHistory(ctx, q.UserID)
	if err != nil {
		degraded = true
		h.logger.Warn("quiz history unavailable", logger.UserID(q.UserID), logger.Err(err))
	}
	sessions, err := h.repo.LoadSessionHistory(ctx, q.UserID)
	if err != nil {
		degraded = true
		h.logger.Warn("session history unavailable", logger.UserID(q.UserID), logger.Err(err))
	}

	return &AnalyticsDTO{
		Snapshot: analytics.AggregateWithLimit(quizzes, sessions, q.RecentLimit),
		Degraded: degraded,
	}, nil
}
