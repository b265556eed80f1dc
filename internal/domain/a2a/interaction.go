package a2a

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
)

// Interaction records one agent action. Interactions are write-once.
type Interaction struct {
	ID              string    `json:"interaction_id"`
	TaskID          string    `json:"task_id"`
	MessageID       string    `json:"message_id,omitempty"`
	UserID          int64     `json:"user_id"`
	AgentName       string    `json:"agent_name"`
	ActionType      string    `json:"action_type"`
	Input           Payload   `json:"input_data,omitempty"`
	Output          Payload   `json:"output_data,omitempty"`
	ExecutionTimeMS *int64    `json:"execution_time_ms,omitempty"`
	TokensUsed      int64     `json:"tokens_used"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Confidence      *float64  `json:"confidence_score,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
	Metadata        Payload   `json:"metadata"`
	CreatedAt       time.Time `json:"created_at"`
}

// LogInteractionRequest carries the fields of an interaction to record.
// A nil Success defaults to true; a nil CompletedAt defaults to now.
type LogInteractionRequest struct {
	TaskID          string     `json:"task_id"`
	MessageID       string     `json:"message_id,omitempty"`
	UserID          int64      `json:"user_id"`
	AgentName       string     `json:"agent_name"`
	ActionType      string     `json:"action_type"`
	Input           Payload    `json:"input_data,omitempty"`
	Output          Payload    `json:"output_data,omitempty"`
	ExecutionTimeMS *int64     `json:"execution_time_ms,omitempty"`
	TokensUsed      int64      `json:"tokens_used,omitempty"`
	Success         *bool      `json:"success,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Confidence      *float64   `json:"confidence_score,omitempty"`
	Reasoning       string     `json:"reasoning,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Metadata        Payload    `json:"metadata,omitempty"`
}

// Validate checks the required fields and fills in defaults relative to now.
func (r *LogInteractionRequest) Validate(now time.Time) error {
	if r.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", domain.ErrValidation)
	}
	if r.AgentName == "" {
		return fmt.Errorf("%w: agent_name is required", domain.ErrValidation)
	}
	if r.ActionType == "" {
		return fmt.Errorf("%w: action_type is required", domain.ErrValidation)
	}
	if r.TokensUsed < 0 {
		return fmt.Errorf("%w: tokens_used must be >= 0", domain.ErrValidation)
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("%w: confidence_score must be within [0, 1]", domain.ErrValidation)
	}
	if r.Success == nil {
		ok := true
		r.Success = &ok
	}
	if r.CompletedAt == nil {
		ts := now
		r.CompletedAt = &ts
	}
	r.Metadata = r.Metadata.OrEmpty()
	return nil
}
