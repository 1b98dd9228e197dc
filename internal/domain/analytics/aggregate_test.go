package analytics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

func quiz(topic string, pct float64) QuizRecord {
	return QuizRecord{Date: timeutil.MustParseDate("2024-04-01"), Topic: topic, Percentage: pct}
}

func TestAggregate_Empty(t *testing.T) {
	snap := Aggregate(nil, nil)

	assert.Equal(t, 0.0, snap.AverageScore)
	assert.Equal(t, "General", snap.WeakestTopic)
	assert.Empty(t, snap.Recent)
	assert.NotNil(t, snap.Recent)
}

func TestAggregate_AverageScore(t *testing.T) {
	snap := Aggregate([]QuizRecord{quiz("Math", 100), quiz("Math", 50)}, nil)
	assert.Equal(t, 75.0, snap.AverageScore)
}

func TestAggregate_IsPure(t *testing.T) {
	quizzes := []QuizRecord{quiz("Physics", 40), quiz("Math", 90), quiz("Physics", 60)}
	sessions := []SessionRecord{{Topic: "Physics", DurationMinutes: 45}}
	before := append([]QuizRecord(nil), quizzes...)

	first := Aggregate(quizzes, sessions)
	second := Aggregate(quizzes, sessions)

	assert.Equal(t, first, second)
	assert.Equal(t, before, quizzes)
}

func TestAggregate_WeakestTopic(t *testing.T) {
	snap := Aggregate([]QuizRecord{
		quiz("Math", 80),
		quiz("History", 55),
		quiz("Biology", 70),
		quiz("History", 65),
	}, nil)

	assert.Equal(t, "History", snap.WeakestTopic)
	require.Len(t, snap.TopicAverages, 3)
	assert.Equal(t, TopicAverage{Topic: "History", Average: 60, Count: 2}, snap.TopicAverages[1])
}

func TestAggregate_WeakestTopicTieGoesToFirstSeen(t *testing.T) {
	snap := Aggregate([]QuizRecord{quiz("Chemistry", 50), quiz("Art", 50), quiz("Math", 90)}, nil)
	assert.Equal(t, "Chemistry", snap.WeakestTopic)
}

func TestAggregate_RecentKeepsLastNInInputOrder(t *testing.T) {
	var quizzes []QuizRecord
	for i := 0; i < 15; i++ {
		quizzes = append(quizzes, NewQuizRecord(timeutil.MustParseDate("2024-04-01").AddDays(i), fmt.Sprintf("T%d", i), i, 20))
	}

	snap := Aggregate(quizzes, nil)
	require.Len(t, snap.Recent, 10)
	assert.Equal(t, "T5", snap.Recent[0].Topic)
	assert.Equal(t, "T14", snap.Recent[9].Topic)
	assert.Equal(t, 14, snap.Recent[9].Score)

	snap = AggregateWithLimit(quizzes, nil, 3)
	require.Len(t, snap.Recent, 3)
	assert.Equal(t, "T12", snap.Recent[0].Topic)
}

func TestAggregate_SessionTotals(t *testing.T) {
	snap := Aggregate(nil, []SessionRecord{{DurationMinutes: 30}, {DurationMinutes: 45}, {DurationMinutes: -5}})

	assert.Equal(t, 3, snap.TotalSessions)
	assert.Equal(t, 75, snap.TotalStudyMinutes)
}

func TestNewQuizRecord(t *testing.T) {
	assert.Equal(t, 80.0, NewQuizRecord(timeutil.Date{}, "x", 8, 10).Percentage)
	assert.Equal(t, 0.0, NewQuizRecord(timeutil.Date{}, "x", 3, 0).Percentage)
}
