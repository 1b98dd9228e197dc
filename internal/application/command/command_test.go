package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/application/saga"
	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

var day1 = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fakeArmer struct {
	mu        sync.Mutex
	armed     map[string]reminder.Sessions
	cancelled []string
	failGroup string
}

func newFakeArmer() *fakeArmer {
	return &fakeArmer{armed: make(map[string]reminder.Sessions)}
}

func (a *fakeArmer) ArmGroup(_ context.Context, groupID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if groupID == a.failGroup {
		return shared.ErrStorage
	}
	a.armed[groupID] = nil
	return nil
}

func (a *fakeArmer) ArmSessions(groupID string, sessions reminder.Sessions) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed[groupID] = sessions
}

func (a *fakeArmer) Cancel(groupID, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, groupID+"/"+sessionID)
}

type fixture struct {
	store  *memory.Store
	repo   *persistence.Repository
	clock  *timeutil.FakeClock
	pub    *recordingPublisher
	armer  *fakeArmer
	record *RecordActionHandler
	log    *LogActivityHandler
	start  *StartSessionHandler
	groups *SessionsHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	m := metrics.Nop()
	repo := persistence.NewRepository(store, logger.Nop(), m)
	clock := timeutil.NewFakeClock(day1)
	pub := &recordingPublisher{}
	armer := newFakeArmer()

	env := Env{
		Repo:      repo,
		Publisher: pub,
		Clock:     clock,
		Location:  time.UTC,
		Logger:    logger.Nop(),
		Metrics:   m,
	}
	flow := saga.NewAchievementFlowSaga(repo, logger.Nop(), m)

	return &fixture{
		store:  store,
		repo:   repo,
		clock:  clock,
		pub:    pub,
		armer:  armer,
		record: NewRecordActionHandler(env, flow),
		log:    NewLogActivityHandler(env, flow),
		start:  NewStartSessionHandler(env, armer),
		groups: NewSessionsHandler(env, armer),
	}
}

func (f *fixture) seedStreak(t *testing.T, userID string, current, best int, last timeutil.Date) {
	t.Helper()
	require.NoError(t, f.repo.SaveStreak(context.Background(), userID, progress.StreakRecord{
		Current:          current,
		Best:             best,
		LastActivityDate: last,
	}))
}

func badgeIDs(list []badge.Badge) []badge.ID {
	out := make([]badge.ID, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func today() timeutil.Date {
	return timeutil.DateOf(day1, time.UTC)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTION
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordAction_FirstQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.record.Handle(ctx, RecordActionCommand{
		UserID: "u1",
		Type:   progress.ActionQuizCompleted,
		Topic:  "Biology",
		Score:  8,
		Total:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counters.QuizCount)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, progress.OutcomeStarted, res.StreakOutcome)
	assert.Equal(t, []badge.ID{badge.FirstQuiz}, badgeIDs(res.NewBadges))
	assert.Equal(t, []shared.EventType{shared.EventStreakStarted, shared.EventBadgeEarned}, f.pub.types())

	quizzes, err := f.repo.LoadQuizHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, quizzes, 1)
	assert.Equal(t, "Biology", quizzes[0].Topic)
	assert.InDelta(t, 80.0, quizzes[0].Percentage, 0.001)
}

func TestRecordAction_EmptyTopicFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.record.Handle(ctx, RecordActionCommand{
		UserID:          "u1",
		Type:            progress.ActionSessionJoined,
		DurationMinutes: 45,
	})
	require.NoError(t, err)

	sessions, err := f.repo.LoadSessionHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "General", sessions[0].Topic)
	assert.Equal(t, 45, sessions[0].DurationMinutes)
}

func TestRecordAction_ActionWithoutCounterStillCountsAsActivity(t *testing.T) {
	f := newFixture(t)

	res, err := f.record.Handle(context.Background(), RecordActionCommand{
		UserID: "u1",
		Type:   progress.ActionChatMessage,
	})
	require.NoError(t, err)

	assert.Equal(t, progress.UsageCounters{}, res.Counters)
	assert.Equal(t, 1, res.Streak.Current)
}

func TestRecordAction_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  RecordActionCommand
		want error
	}{
		{"missing user", RecordActionCommand{Type: progress.ActionAIChat}, shared.ErrInvalidUserID},
		{"unknown type", RecordActionCommand{UserID: "u1", Type: "dance"}, shared.ErrUnknownAction},
		{"score above total", RecordActionCommand{UserID: "u1", Type: progress.ActionQuizCompleted, Score: 11, Total: 10}, shared.ErrInvalidScore},
		{"zero total", RecordActionCommand{UserID: "u1", Type: progress.ActionQuizCompleted}, shared.ErrInvalidScore},
		{"negative duration", RecordActionCommand{UserID: "u1", Type: progress.ActionSessionJoined, DurationMinutes: -5}, shared.ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.record.Handle(ctx, tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, shared.IsValidation(err))
		})
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestRecordAction_MultipleBadgesInCatalogOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.SaveCounter(ctx, "u1", progress.CounterQuiz, 9))
	f.seedStreak(t, "u1", 4, 4, today().Yesterday())

	res, err := f.record.Handle(ctx, RecordActionCommand{
		UserID: "u1",
		Type:   progress.ActionQuizCompleted,
		Score:  5,
		Total:  5,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Streak.Current)
	assert.Equal(t, []badge.ID{badge.FirstQuiz, badge.FireStarter, badge.QuizMaster}, badgeIDs(res.NewBadges))
	assert.Equal(t, []shared.EventType{
		shared.EventStreakIncreased,
		shared.EventBadgeEarned,
		shared.EventBadgeEarned,
		shared.EventBadgeEarned,
	}, f.pub.types())

	badges, err := f.repo.LoadBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, badge.EarnedCount(badges))
}

func TestRecordAction_BadgeAwardedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := RecordActionCommand{UserID: "u1", Type: progress.ActionQuizCompleted, Score: 1, Total: 1}

	_, err := f.record.Handle(ctx, cmd)
	require.NoError(t, err)
	f.pub.reset()

	res, err := f.record.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Empty(t, res.NewBadges)
	assert.Empty(t, f.pub.types())
	assert.Equal(t, 2, res.Counters.QuizCount)
}

func TestRecordAction_AbortsOnReadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith(errors.New("connection refused"))

	_, err := f.record.Handle(context.Background(), RecordActionCommand{
		UserID: "u1",
		Type:   progress.ActionAIChat,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Empty(t, f.pub.types())

	f.store.FailWith(nil)
	counters, err := f.repo.LoadCounters(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, counters.AIUsageCount)
}

func TestRecordAction_AbortsOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedStreak(t, "u1", 7, 7, today().Yesterday())
	f.store.FailWritesWith(errors.New("disk full"))

	_, err := f.record.Handle(ctx, RecordActionCommand{UserID: "u1", Type: progress.ActionAIChat})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Empty(t, f.pub.types())

	f.store.FailWritesWith(nil)
	rec, err := f.repo.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 7, rec.Current)
}

func TestRecordAction_StreakFailureLeavesCounterAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	streakKey := progress.UserKey("u1", progress.KeyStreak)
	f.store.FailWritesToKey(streakKey, errors.New("disk full"))

	cmd := RecordActionCommand{UserID: "u1", Type: progress.ActionQuizCompleted, Topic: "Algebra", Score: 5, Total: 10}
	_, err := f.record.Handle(ctx, cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStorage)

	counters, err := f.repo.LoadCounters(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, counters.QuizCount)
	quizzes, err := f.repo.LoadQuizHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, quizzes)

	f.store.FailWritesToKey(streakKey, nil)
	res, err := f.record.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counters.QuizCount)
	assert.Equal(t, 1, res.Streak.Current)
}

func TestRecordAction_RetryAfterCounterFailureKeepsStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedStreak(t, "u1", 4, 4, today().Yesterday())
	counterKey := progress.CounterKey("u1", progress.CounterAIUsage)
	f.store.FailWritesToKey(counterKey, errors.New("disk full"))

	cmd := RecordActionCommand{UserID: "u1", Type: progress.ActionAIChat}
	_, err := f.record.Handle(ctx, cmd)
	require.Error(t, err)
	assert.Empty(t, f.pub.types())

	f.store.FailWritesToKey(counterKey, nil)
	res, err := f.record.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Streak.Current)
	assert.Equal(t, 1, res.Counters.AIUsageCount)

	rec, err := f.repo.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Current)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

func TestLogActivity_SameDayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.log.Handle(ctx, LogActivityCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, progress.OutcomeStarted, first.Outcome)

	f.clock.Advance(5 * time.Hour)
	second, err := f.log.Handle(ctx, LogActivityCommand{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeUnchanged, second.Outcome)
	assert.Equal(t, first.Streak, second.Streak)
	assert.Empty(t, second.Events)
}

func TestLogActivity_ConsecutiveDaysContinue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.log.Handle(ctx, LogActivityCommand{UserID: "u1", At: day1.AddDate(0, 0, i)})
		require.NoError(t, err)
	}

	rec, err := f.repo.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Current)
	assert.Equal(t, 3, rec.Best)
}

func TestLogActivity_GapRestartsAndKeepsBest(t *testing.T) {
	f := newFixture(t)
	f.seedStreak(t, "u1", 6, 9, today().AddDays(-3))

	res, err := f.log.Handle(context.Background(), LogActivityCommand{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeRestarted, res.Outcome)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 9, res.Streak.Best)
	assert.Equal(t, []shared.EventType{shared.EventStreakStarted}, f.pub.types())
}

func TestLogActivity_DedicatedScholarOnlyAtThirty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedStreak(t, "u1", 28, 28, today().Yesterday())

	res, err := f.log.Handle(ctx, LogActivityCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 29, res.Streak.Current)
	assert.NotContains(t, badgeIDs(res.NewBadges), badge.DedicatedScholar)

	res, err = f.log.Handle(ctx, LogActivityCommand{UserID: "u1", At: day1.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Streak.Current)
	assert.Equal(t, []badge.ID{badge.DedicatedScholar}, badgeIDs(res.NewBadges))
}

func TestLogActivity_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.log.Handle(ctx, LogActivityCommand{UserID: "u1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := f.repo.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Current)
	assert.Equal(t, []shared.EventType{shared.EventStreakStarted}, f.pub.types())
}

// ══════════════════════════════════════════════════════════════════════════════
// START SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestStartSession_ResetsBrokenStreakOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedStreak(t, "u1", 4, 6, today().AddDays(-2))

	res, err := f.start.Handle(ctx, StartSessionCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, res.StreakReset)
	assert.Equal(t, 0, res.Streak.Current)
	assert.Equal(t, 6, res.Streak.Best)
	assert.Equal(t, []shared.EventType{shared.EventStreakReset}, f.pub.types())

	f.pub.reset()
	res, err = f.start.Handle(ctx, StartSessionCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.StreakReset)
	assert.Empty(t, f.pub.types())
}

func TestStartSession_LiveStreakUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedStreak(t, "u1", 4, 6, today().Yesterday())

	res, err := f.start.Handle(context.Background(), StartSessionCommand{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.StreakReset)
	assert.Equal(t, 4, res.Streak.Current)
	assert.Empty(t, f.pub.types())
}

func TestStartSession_ArmsGroups(t *testing.T) {
	f := newFixture(t)
	f.armer.failGroup = "g-broken"

	res, err := f.start.Handle(context.Background(), StartSessionCommand{
		UserID:   "u1",
		GroupIDs: []string{"g1", "g-broken", "g2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, res.ArmedGroups)
	assert.Equal(t, []string{"g-broken"}, res.FailedGroups)
}

func TestStartSession_AbortsOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith(errors.New("timeout"))

	_, err := f.start.Handle(context.Background(), StartSessionCommand{UserID: "u1", GroupIDs: []string{"g1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.Empty(t, f.armer.armed)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestSessions_ScheduleUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := today().AddDays(1)

	created, err := f.groups.Schedule(ctx, ScheduleSessionCommand{
		GroupID: "g1",
		Topic:   "Calculus",
		Date:    date,
		Time:    "18:00",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.Session.ID)
	assert.Equal(t, day1, created.Session.CreatedAt)
	assert.Len(t, f.armer.armed["g1"], 1)

	updated, err := f.groups.Update(ctx, UpdateSessionCommand{
		GroupID:   "g1",
		SessionID: created.Session.ID,
		Time:      "19:30",
	})
	require.NoError(t, err)
	assert.Equal(t, "Calculus", updated.Session.Topic)
	assert.Equal(t, "19:30", updated.Session.Time)

	stored, err := f.repo.LoadSessions(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "19:30", stored[0].Time)

	_, err = f.groups.Delete(ctx, DeleteSessionCommand{GroupID: "g1", SessionID: created.Session.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"g1/" + created.Session.ID}, f.armer.cancelled)

	stored, err = f.repo.LoadSessions(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSessions_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.groups.Schedule(ctx, ScheduleSessionCommand{GroupID: "g1", SessionID: "s1", Topic: "Chem", Date: today(), Time: "25:00"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.groups.Schedule(ctx, ScheduleSessionCommand{GroupID: "g1", SessionID: "s1", Topic: "Chem", Date: today(), Time: "10:00"})
	require.NoError(t, err)
	_, err = f.groups.Schedule(ctx, ScheduleSessionCommand{GroupID: "g1", SessionID: "s1", Topic: "Chem", Date: today(), Time: "11:00"})
	assert.ErrorIs(t, err, shared.ErrSessionAlreadyExists)

	_, err = f.groups.Update(ctx, UpdateSessionCommand{GroupID: "g1", SessionID: "missing", Topic: "x"})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.groups.Delete(ctx, DeleteSessionCommand{GroupID: "g1", SessionID: "missing"})
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.armer.cancelled)

	f.store.FailWith(errors.New("down"))
	_, err = f.groups.Schedule(ctx, ScheduleSessionCommand{GroupID: "g1", Topic: "Chem", Date: today(), Time: "12:00"})
	assert.ErrorIs(t, err, shared.ErrStorage)
}
