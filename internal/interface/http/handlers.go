package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/studybuddy/progress-engine/internal/application/command"
	"github.com/studybuddy/progress-engine/internal/application/query"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/messaging"
	"github.com/studybuddy/progress-engine/internal/infrastructure/scheduler"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type recordActionRequest struct {
	Type            progress.ActionType `json:"type"`
	Topic           string              `json:"topic"`
	Score           int                 `json:"score"`
	Total           int                 `json:"total"`
	DurationMinutes int                 `json:"durationMinutes"`
	At              *time.Time          `json:"at,omitempty"`
}

// handleRecordAction handles POST /api/v1/users/{userID}/actions
func (s *Server) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	var req recordActionRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.RecordAction.Handle(r.Context(), command.RecordActionCommand{
		UserID:          r.PathValue("userID"),
		Type:            req.Type,
		Topic:           req.Topic,
		Score:           req.Score,
		Total:           req.Total,
		DurationMinutes: req.DurationMinutes,
		At:              timeOrZero(req.At),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"counters":      res.Counters,
		"streak":        res.Streak,
		"streakOutcome": res.StreakOutcome,
		"newBadges":     res.NewBadges,
	})
}

type activityRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// handleLogActivity handles POST /api/v1/users/{userID}/activity
func (s *Server) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	res, err := s.deps.LogActivity.Handle(r.Context(), command.LogActivityCommand{
		UserID: r.PathValue("userID"),
		At:     timeOrZero(req.At),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"streak":    res.Streak,
		"outcome":   res.Outcome,
		"newBadges": res.NewBadges,
	})
}

type sessionStartRequest struct {
	GroupIDs []string   `json:"groupIds"`
	At       *time.Time `json:"at,omitempty"`
}

// handleStartSession handles POST /api/v1/users/{userID}/session-start
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	res, err := s.deps.StartSession.Handle(r.Context(), command.StartSessionCommand{
		UserID:   r.PathValue("userID"),
		GroupIDs: req.GroupIDs,
		At:       timeOrZero(req.At),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"streak":       res.Streak,
		"streakReset":  res.StreakReset,
		"armedGroups":  nonNil(res.ArmedGroups),
		"failedGroups": nonNil(res.FailedGroups),
	})
}

// handleGetProgress handles GET /api/v1/users/{userID}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{
		UserID: r.PathValue("userID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{Degraded: dto.Degraded})
}

// handleGetAnalytics handles GET /api/v1/users/{userID}/analytics
func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetAnalytics.Handle(r.Context(), query.GetAnalyticsQuery{
		UserID:      r.PathValue("userID"),
		RecentLimit: getQueryParamInt(r, "recent", 0),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{Degraded: dto.Degraded})
}

// handleUserNotifications handles GET /api/v1/users/{userID}/notifications
func (s *Server) handleUserNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, r, messaging.UserRecipient(r.PathValue("userID")))
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type sessionRequest struct {
	ID    string        `json:"id,omitempty"`
	Topic string        `json:"topic"`
	Date  timeutil.Date `json:"date"`
	Time  string        `json:"time"`
}

// handleListSessions handles GET /api/v1/groups/{groupID}/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListSessions.Handle(r.Context(), query.ListSessionsQuery{
		GroupID:      r.PathValue("groupID"),
		UpcomingOnly: getQueryParamBool(r, "upcoming"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// handleScheduleSession handles POST /api/v1/groups/{groupID}/sessions
func (s *Server) handleScheduleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Sessions.Schedule(r.Context(), command.ScheduleSessionCommand{
		GroupID:   r.PathValue("groupID"),
		SessionID: req.ID,
		Topic:     req.Topic,
		Date:      req.Date,
		Time:      req.Time,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res.Session)
}

// handleUpdateSession handles PUT /api/v1/groups/{groupID}/sessions/{sessionID}
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Sessions.Update(r.Context(), command.UpdateSessionCommand{
		GroupID:   r.PathValue("groupID"),
		SessionID: r.PathValue("sessionID"),
		Topic:     req.Topic,
		Date:      req.Date,
		Time:      req.Time,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res.Session)
}

// handleDeleteSession handles DELETE /api/v1/groups/{groupID}/sessions/{sessionID}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	_, err := s.deps.Sessions.Delete(r.Context(), command.DeleteSessionCommand{
		GroupID:   r.PathValue("groupID"),
		SessionID: r.PathValue("sessionID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGroupNotifications handles GET /api/v1/groups/{groupID}/notifications
func (s *Server) handleGroupNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeFeed(w, r, messaging.GroupRecipient(r.PathValue("groupID")))
}

func (s *Server) writeFeed(w http.ResponseWriter, r *http.Request, to messaging.Recipient) {
	if s.deps.Feed == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Notification feed not configured")
		return
	}
	list := s.deps.Feed.Recent(to, getQueryParamInt(r, "limit", 20))
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type jobRunResponse struct {
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

func toJobRunResponse(r scheduler.JobResult) jobRunResponse {
	resp := jobRunResponse{
		Job:         r.JobName,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMs:  r.Duration.Milliseconds(),
		Success:     r.Success,
	}
	if r.Error != nil {
		resp.Error = r.Error.Error()
	}
	return resp
}

type jobsResponse struct {
	Jobs    []scheduler.JobInfo `json:"jobs"`
	History []jobRunResponse    `json:"history"`
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	history := s.deps.Jobs.GetHistory(getQueryParamInt(r, "limit", 20))
	resp := jobsResponse{
		Jobs:    s.deps.Jobs.ListJobs(),
		History: make([]jobRunResponse, 0, len(history)),
	}
	for _, h := range history {
		resp.History = append(resp.History, toJobRunResponse(h))
	}
	writeJSONWithMeta(w, r, http.StatusOK, resp, &ResponseMeta{TotalCount: len(resp.Jobs)})
}

// handleRunJob handles POST /api/v1/jobs/{name}/run. A job that ran and
// failed is still a 200; the failure is in the body.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Jobs.RunNow(r.Context(), r.PathValue("name"))
	if errors.Is(err, scheduler.ErrJobNotFound) {
		writeJSONErrorWithDetails(w, r, http.StatusNotFound, "not_found", "Job not found", err.Error())
		return
	}
	if result == nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toJobRunResponse(*result))
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a required JSON body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON", err.Error())
		return false
	}
	return true
}

// decodeOptional reads a JSON body into v; an empty body is allowed.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON", err.Error())
	return false
}

// writeError maps an application error to a status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation_error", "Invalid request", err.Error())
	case shared.IsNotFound(err):
		writeJSONErrorWithDetails(w, r, http.StatusNotFound, "not_found", "Resource not found", err.Error())
	case shared.IsAlreadyExists(err):
		writeJSONErrorWithDetails(w, r, http.StatusConflict, "conflict", "Resource already exists", err.Error())
	case errors.Is(err, shared.ErrStorage):
		logger.FromContext(r.Context()).Error("request failed on storage", logger.Err(err))
		writeJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable", "Progress storage is unavailable, please retry")
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
