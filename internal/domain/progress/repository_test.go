package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "studybuddy:user:u1:streak", UserKey("u1", KeyStreak))
	assert.Equal(t, "studybuddy:user:u1:quizCount", CounterKey("u1", CounterQuiz))
	assert.Equal(t, "studybuddy:group:g-7:sessions", GroupSessionsKey("g-7"))

	id, ok := GroupIDFromKey(GroupSessionsKey("g-7"))
	assert.True(t, ok)
	assert.Equal(t, "g-7", id)

	_, ok = GroupIDFromKey(UserKey("u1", KeyStreak))
	assert.False(t, ok)
}

func TestActionType_Counter(t *testing.T) {
	c, ok := ActionQuizCompleted.Counter()
	assert.True(t, ok)
	assert.Equal(t, CounterQuiz, c)

	_, ok = ActionChatMessage.Counter()
	assert.False(t, ok)
	assert.True(t, ActionChatMessage.IsValid())
	assert.False(t, ActionType("dance").IsValid())
}

func TestUsageCounters_Increment(t *testing.T) {
	var u UsageCounters
	for _, c := range AllCounters() {
		assert.Equal(t, 1, u.Increment(c))
	}
	assert.Equal(t, UsageCounters{QuizCount: 1, SessionCount: 1, AIUsageCount: 1, DocSummarizeCount: 1}, u)

	u.Set(CounterQuiz, -4)
	assert.Equal(t, 0, u.QuizCount)
}
