package a2a

import (
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
)

// DefaultSessionTTL is applied to sessions inserted without an expiry.
const DefaultSessionTTL = 24 * time.Hour

// SessionState is the single persisted row backing one conversation session.
type SessionState struct {
	SessionID         string    `json:"session_id"`
	UserID            int64     `json:"user_id"`
	ConversationID    *int64    `json:"conversation_id,omitempty"`
	ActiveTasks       []string  `json:"active_tasks"`
	Context           Payload   `json:"session_context"`
	OrchestratorState Payload   `json:"orchestrator_state"`
	LastActivity      time.Time `json:"last_activity"`
	ExpiresAt         time.Time `json:"expires_at"`
	IsActive          bool      `json:"is_active"`
	Metadata          Payload   `json:"metadata"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasTask reports whether taskID is tracked as active on the session.
func (s *SessionState) HasTask(taskID string) bool {
	return slices.Contains(s.ActiveTasks, taskID)
}

// UpsertSessionRequest is the insert-or-update payload keyed by SessionID.
// A nil ExpiresAt keeps the stored expiry on update and applies the default
// TTL on insert.
type UpsertSessionRequest struct {
	SessionID         string     `json:"session_id"`
	UserID            int64      `json:"user_id"`
	ConversationID    *int64     `json:"conversation_id,omitempty"`
	ActiveTasks       []string   `json:"active_tasks,omitempty"`
	Context           Payload    `json:"session_context,omitempty"`
	OrchestratorState Payload    `json:"orchestrator_state,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Metadata          Payload    `json:"metadata,omitempty"`
}

// Validate checks the required fields and fills in empty containers.
func (r *UpsertSessionRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	if r.UserID <= 0 {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if r.ActiveTasks == nil {
		r.ActiveTasks = []string{}
	}
	r.Context = r.Context.OrEmpty()
	r.OrchestratorState = r.OrchestratorState.OrEmpty()
	r.Metadata = r.Metadata.OrEmpty()
	return nil
}

// SessionTask is the compact task projection embedded in a SessionSummary.
type SessionTask struct {
	TaskID       string    `json:"task_id"`
	TaskType     string    `json:"task_type"`
	TaskState    TaskState `json:"task_state"`
	CurrentAgent string    `json:"current_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionSummary is a row of the active-sessions view.
type SessionSummary struct {
	SessionID       string        `json:"session_id"`
	UserID          int64         `json:"user_id"`
	ConversationID  *int64        `json:"conversation_id,omitempty"`
	LastActivity    time.Time     `json:"last_activity"`
	SessionCreated  time.Time     `json:"session_created"`
	ActiveTaskCount int           `json:"active_task_count"`
	Tasks           []SessionTask `json:"tasks"`
}
