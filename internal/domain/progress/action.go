package progress

// ActionType is a user action reported by the UI after it succeeded.
type ActionType string

const (
	ActionQuizCompleted      ActionType = "quiz_completed"
	ActionAIChat             ActionType = "ai_chat"
	ActionDocumentSummarized ActionType = "document_summarized"
	ActionSessionJoined      ActionType = "session_joined"
	ActionChatMessage        ActionType = "chat_message"
	ActionDocumentUploaded   ActionType = "document_uploaded"
	ActionSessionScheduled   ActionType = "session_scheduled"
)

// IsValid checks if the action type is known.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionQuizCompleted, ActionAIChat, ActionDocumentSummarized,
		ActionSessionJoined, ActionChatMessage, ActionDocumentUploaded,
		ActionSessionScheduled:
		return true
	}
	return false
}

// Counter returns the usage counter the action increments, if any.
// Every action counts as activity for the streak.
func (a ActionType) Counter() (Counter, bool) {
	switch a {
	case ActionQuizCompleted:
		return CounterQuiz, true
	case ActionAIChat:
		return CounterAIUsage, true
	case ActionDocumentSummarized:
		return CounterDocSummarize, true
	case ActionSessionJoined:
		return CounterSession, true
	}
	return "", false
}

// String returns the action name.
func (a ActionType) String() string {
	return string(a)
}
