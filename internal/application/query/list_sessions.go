package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST SESSIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListSessionsQuery lists a group's scheduled sessions.
type ListSessionsQuery struct {
	GroupID string

	// UpcomingOnly drops sessions that already started.
	UpcomingOnly bool
}

// Validate validates the query.
func (q ListSessionsQuery) Validate() error {
	if err := shared.ValidateGroupID(q.GroupID); err != nil {
		return err
	}
	return nil
}

// SessionDTO is a scheduled session with its resolved start.
type SessionDTO struct {
	reminder.ScheduledSession
	StartsAt time.Time `json:"startsAt"`
}

// ListSessionsHandler handles the ListSessionsQuery.
type ListSessionsHandler struct {
	repo     ProgressReader
	clock    timeutil.Clock
	location *time.Location
}

// NewListSessionsHandler creates a new ListSessionsHandler.
func NewListSessionsHandler(repo ProgressReader, clock timeutil.Clock, loc *time.Location) *ListSessionsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ListSessionsHandler{repo: repo, clock: clock, location: loc}
}

// Handle returns the group's sessions ordered by start. Unlike the
// dashboard queries it fails on storage errors: an empty list would be
// indistinguishable from a group with no sessions.
func (h *ListSessionsHandler) Handle(ctx context.Context, q ListSessionsQuery) ([]SessionDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_sessions: validation failed: %w", err)
	}

	list, err := h.repo.LoadSessions(ctx, strings.TrimSpace(q.GroupID))
	if err != nil {
		return nil, fmt.Errorf("list_sessions: %w", err)
	}

	now := h.clock.Now()
	out := make([]SessionDTO, 0, len(list))
	for _, s := range list {
		start, err := s.StartsAt(h.location)
		if err != nil {
			continue
		}
		if q.UpcomingOnly && !start.After(now) {
			continue
		}
		out = append(out, SessionDTO{ScheduledSession: s, StartsAt: start})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}
