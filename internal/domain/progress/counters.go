package progress

// Counter names a per-feature usage counter. The value doubles as the
// storage key suffix.
type Counter string

const (
	CounterQuiz         Counter = "quizCount"
	CounterSession      Counter = "sessionCount"
	CounterAIUsage      Counter = "aiUsageCount"
	CounterDocSummarize Counter = "docSummarizeCount"
)

// AllCounters lists every counter in a stable order.
func AllCounters() []Counter {
	return []Counter{CounterQuiz, CounterSession, CounterAIUsage, CounterDocSummarize}
}

// IsValid checks if the counter is known.
func (c Counter) IsValid() bool {
	switch c {
	case CounterQuiz, CounterSession, CounterAIUsage, CounterDocSummarize:
		return true
	}
	return false
}

// String returns the counter name.
func (c Counter) String() string {
	return string(c)
}

// UsageCounters holds the monotonic per-feature counters of a user.
type UsageCounters struct {
	QuizCount         int `json:"quizCount"`
	SessionCount      int `json:"sessionCount"`
	AIUsageCount      int `json:"aiUsageCount"`
	DocSummarizeCount int `json:"docSummarizeCount"`
}

// Get returns the value of counter c.
func (u UsageCounters) Get(c Counter) int {
	switch c {
	case CounterQuiz:
		return u.QuizCount
	case CounterSession:
		return u.SessionCount
	case CounterAIUsage:
		return u.AIUsageCount
	case CounterDocSummarize:
		return u.DocSummarizeCount
	}
	return 0
}

// Set stores v into counter c. Negative values are clamped to zero.
func (u *UsageCounters) Set(c Counter, v int) {
	if v < 0 {
		v = 0
	}
	switch c {
	case CounterQuiz:
		u.QuizCount = v
	case CounterSession:
		u.SessionCount = v
	case CounterAIUsage:
		u.AIUsageCount = v
	case CounterDocSummarize:
		u.DocSummarizeCount = v
	}
}

// Increment adds exactly one to counter c and returns the new value.
func (u *UsageCounters) Increment(c Counter) int {
	u.Set(c, u.Get(c)+1)
	return u.Get(c)
}
