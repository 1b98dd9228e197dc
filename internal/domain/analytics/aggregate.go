// Package analytics derives read-side statistics from quiz and session
// history. Everything here is a pure function of its inputs.
package analytics

import (
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

const (
	// DefaultRecentLimit is how many quiz records the recency list keeps.
	DefaultRecentLimit = 10

	// FallbackTopic is reported as weakest topic when there is no history.
	FallbackTopic = "General"
)

// QuizRecord is one completed quiz.
type QuizRecord struct {
	Date       timeutil.Date `json:"date"`
	Topic      string        `json:"topic"`
	Score      int           `json:"score"`
	Total      int           `json:"total"`
	Percentage float64       `json:"percentage"`
}

// NewQuizRecord builds a record and computes its percentage.
// A zero total yields 0%.
func NewQuizRecord(date timeutil.Date, topic string, score, total int) QuizRecord {
	var pct float64
	if total > 0 {
		pct = float64(score) * 100 / float64(total)
	}
	return QuizRecord{
		Date:       date,
		Topic:      topic,
		Score:      score,
		Total:      total,
		Percentage: pct,
	}
}

// SessionRecord is one joined study session.
type SessionRecord struct {
	Date            timeutil.Date `json:"date"`
	Topic           string        `json:"topic"`
	DurationMinutes int           `json:"durationMinutes"`
}

// RecentQuiz is an entry of the recency list.
type RecentQuiz struct {
	Date       timeutil.Date `json:"date"`
	Topic      string        `json:"topic"`
	Score      int           `json:"score"`
	Total      int           `json:"total"`
	Percentage float64       `json:"percentage"`
}

// TopicAverage is the mean percentage of one topic.
type TopicAverage struct {
	Topic   string  `json:"topic"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Snapshot is the derived analytics view. It is never persisted.
type Snapshot struct {
	AverageScore      float64        `json:"averageScore"`
	WeakestTopic      string         `json:"weakestTopic"`
	Recent            []RecentQuiz   `json:"recent"`
	TopicAverages     []TopicAverage `json:"topicAverages"`
	TotalQuizzes      int            `json:"totalQuizzes"`
	TotalSessions     int            `json:"totalSessions"`
	TotalStudyMinutes int            `json:"totalStudyMinutes"`
}

// Aggregate computes a Snapshot with the default recency limit.
func Aggregate(quizzes []QuizRecord, sessions []SessionRecord) Snapshot {
	return AggregateWithLimit(quizzes, sessions, DefaultRecentLimit)
}

// AggregateWithLimit computes a Snapshot keeping the last limit quizzes.
//
//   - AverageScore is the mean Percentage over all quizzes, 0 when empty.
//   - WeakestTopic is the topic with the lowest mean Percentage; ties go
//     to the topic encountered first. FallbackTopic when empty.
//   - Recent holds the last limit quizzes in input order.
//
// Inputs are not modified.
func AggregateWithLimit(quizzes []QuizRecord, sessions []SessionRecord, limit int) Snapshot {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	snap := Snapshot{
		WeakestTopic:  FallbackTopic,
		Recent:        []RecentQuiz{},
		TopicAverages: []TopicAverage{},
		TotalQuizzes:  len(quizzes),
		TotalSessions: len(sessions),
	}

	for _, s := range sessions {
		if s.DurationMinutes > 0 {
			snap.TotalStudyMinutes += s.DurationMinutes
		}
	}

	if len(quizzes) == 0 {
		return snap
	}

	type acc struct {
		sum   float64
		count int
	}
	var order []string
	byTopic := make(map[string]*acc)
	var total float64
	weakest := 0

	for _, q := range quizzes {
		total += q.Percentage
		a, ok := byTopic[q.Topic]
		if !ok {
			a = &acc{}
			byTopic[q.Topic] = a
			order = append(order, q.Topic)
		}
		a.sum += q.Percentage
		a.count++
	}
	snap.AverageScore = total / float64(len(quizzes))

	for i, topic := range order {
		a := byTopic[topic]
		avg := a.sum / float64(a.count)
		snap.TopicAverages = append(snap.TopicAverages, TopicAverage{Topic: topic, Average: avg, Count: a.count})
		if i == 0 || avg < snap.TopicAverages[weakest].Average {
			weakest = i
		}
	}
	if t := snap.TopicAverages[weakest].Topic; t != "" {
		snap.WeakestTopic = t
	}

	start := len(quizzes) - limit
	if start < 0 {
		start = 0
	}
	for _, q := range quizzes[start:] {
		snap.Recent = append(snap.Recent, RecentQuiz{
			Date:       q.Date,
			Topic:      q.Topic,
			Score:      q.Score,
			Total:      q.Total,
			Percentage: q.Percentage,
		})
	}

	return snap
}
