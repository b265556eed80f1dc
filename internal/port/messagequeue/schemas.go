package messagequeue

import "time"

// TaskEventPayload is the schema for a2a.task.created and a2a.task.updated.
type TaskEventPayload struct {
	TaskID       string    `json:"task_id"`
	SessionID    string    `json:"session_id"`
	UserID       int64     `json:"user_id"`
	TaskType     string    `json:"task_type"`
	TaskState    string    `json:"task_state"`
	CurrentAgent string    `json:"current_agent,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MessageLoggedPayload is the schema for a2a.message.logged.
type MessageLoggedPayload struct {
	MessageID    string    `json:"message_id"`
	TaskID       string    `json:"task_id,omitempty"`
	SessionID    string    `json:"session_id"`
	SenderType   string    `json:"sender_type"`
	ReceiverType string    `json:"receiver_type"`
	MessageType  string    `json:"message_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// InteractionLoggedPayload is the schema for a2a.interaction.logged.
type InteractionLoggedPayload struct {
	InteractionID   string `json:"interaction_id"`
	TaskID          string `json:"task_id"`
	AgentName       string `json:"agent_name"`
	ActionType      string `json:"action_type"`
	Success         bool   `json:"success"`
	ExecutionTimeMS *int64 `json:"execution_time_ms,omitempty"`
}

// SessionEventPayload is the schema for a2a.session.upserted and
// a2a.session.deactivated.
type SessionEventPayload struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id,omitempty"`
	IsActive  bool   `json:"is_active"`
}

// CleanupCompletedPayload is the schema for a2a.cleanup.completed.
type CleanupCompletedPayload struct {
	ExpiredSessions int64     `json:"expired_sessions"`
	ArchivedTasks   int64     `json:"archived_tasks"`
	RanAt           time.Time `json:"ran_at"`
}
