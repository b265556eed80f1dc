// Package a2a defines the persisted records of the agent-to-agent layer:
// tasks, protocol messages, agent interactions and per-session state.
package a2a

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
)

// TaskState is the lifecycle state of a task. Transitions are not enforced
// by the store; the orchestrator owns legality.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateActive     TaskState = "active"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
	TaskStateCancelled  TaskState = "cancelled"
)

var validTaskStates = map[TaskState]bool{
	TaskStatePending:    true,
	TaskStateProcessing: true,
	TaskStateActive:     true,
	TaskStateCompleted:  true,
	TaskStateFailed:     true,
	TaskStateCancelled:  true,
}

// ActiveTaskStates lists the states counted as in-flight work.
var ActiveTaskStates = []TaskState{TaskStatePending, TaskStateProcessing, TaskStateActive}

// TerminalTaskStates lists the states eligible for archiving.
var TerminalTaskStates = []TaskState{TaskStateCompleted, TaskStateFailed, TaskStateCancelled}

// Valid reports whether s is a recognized state.
func (s TaskState) Valid() bool { return validTaskStates[s] }

// IsActive reports whether s counts as in-flight work.
func (s TaskState) IsActive() bool {
	return s == TaskStatePending || s == TaskStateProcessing || s == TaskStateActive
}

// IsTerminal reports whether s is a final state.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed || s == TaskStateCancelled
}

// Priority orders tasks for the orchestrator.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Task is a unit of multi-agent work.
type Task struct {
	ID             string     `json:"task_id"`
	SessionID      string     `json:"session_id"`
	UserID         int64      `json:"user_id"`
	Type           string     `json:"task_type"`
	Description    string     `json:"task_description"`
	Context        Payload    `json:"task_context"`
	State          TaskState  `json:"task_state"`
	Progress       Payload    `json:"progress_data"`
	AssignedAgents []string   `json:"assigned_agents"`
	CurrentAgent   string     `json:"current_agent,omitempty"`
	Priority       Priority   `json:"priority"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorData      Payload    `json:"error_data,omitempty"`
	Metadata       Payload    `json:"metadata"`
}

// CreateTaskRequest carries the fields needed to create a task.
type CreateTaskRequest struct {
	SessionID      string   `json:"session_id"`
	UserID         int64    `json:"user_id"`
	Type           string   `json:"task_type"`
	Description    string   `json:"task_description"`
	Context        Payload  `json:"task_context,omitempty"`
	AssignedAgents []string `json:"assigned_agents,omitempty"`
	Priority       Priority `json:"priority,omitempty"`
	Metadata       Payload  `json:"metadata,omitempty"`
}

// Validate checks the required fields and fills in defaults.
func (r *CreateTaskRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	if r.UserID <= 0 {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: task_type is required", domain.ErrValidation)
	}
	if r.Description == "" {
		return fmt.Errorf("%w: task_description is required", domain.ErrValidation)
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", domain.ErrValidation, r.Priority)
	}
	r.Context = r.Context.OrEmpty()
	r.Metadata = r.Metadata.OrEmpty()
	if r.AssignedAgents == nil {
		r.AssignedAgents = []string{}
	}
	return nil
}

// TaskField names a column that UpdateTask may write.
type TaskField string

const (
	FieldTaskState    TaskField = "task_state"
	FieldProgressData TaskField = "progress_data"
	FieldCurrentAgent TaskField = "current_agent"
	FieldStartedAt    TaskField = "started_at"
	FieldCompletedAt  TaskField = "completed_at"
	FieldErrorData    TaskField = "error_data"
	FieldMetadata     TaskField = "metadata"
)

// Assignment is one column/value pair of a partial task update. Value is a
// TaskState, Payload, string or time.Time depending on Field.
type Assignment struct {
	Field TaskField
	Value any
}

// TaskUpdate is a partial update over the allow-listed task fields. The
// zero value is empty; use the With* methods to set fields.
type TaskUpdate struct {
	state        *TaskState
	progress     *Payload
	currentAgent *string
	startedAt    *time.Time
	completedAt  *time.Time
	errorData    *Payload
	metadata     *Payload
}

func (u TaskUpdate) WithState(s TaskState) TaskUpdate {
	u.state = &s
	return u
}

func (u TaskUpdate) WithProgress(p Payload) TaskUpdate {
	u.progress = &p
	return u
}

func (u TaskUpdate) WithCurrentAgent(agent string) TaskUpdate {
	u.currentAgent = &agent
	return u
}

func (u TaskUpdate) WithStartedAt(t time.Time) TaskUpdate {
	u.startedAt = &t
	return u
}

func (u TaskUpdate) WithCompletedAt(t time.Time) TaskUpdate {
	u.completedAt = &t
	return u
}

func (u TaskUpdate) WithErrorData(p Payload) TaskUpdate {
	u.errorData = &p
	return u
}

func (u TaskUpdate) WithMetadata(p Payload) TaskUpdate {
	u.metadata = &p
	return u
}

// IsEmpty reports whether no field is set.
func (u TaskUpdate) IsEmpty() bool {
	return len(u.Assignments()) == 0
}

// Validate rejects empty updates and unknown states.
func (u TaskUpdate) Validate() error {
	if u.IsEmpty() {
		return fmt.Errorf("%w: no updatable fields provided", domain.ErrValidation)
	}
	if u.state != nil && !u.state.Valid() {
		return fmt.Errorf("%w: invalid task_state %q", domain.ErrValidation, *u.state)
	}
	return nil
}

// Assignments returns the set fields in a fixed column order.
func (u TaskUpdate) Assignments() []Assignment {
	var out []Assignment
	if u.state != nil {
		out = append(out, Assignment{Field: FieldTaskState, Value: *u.state})
	}
	if u.progress != nil {
		out = append(out, Assignment{Field: FieldProgressData, Value: *u.progress})
	}
	if u.currentAgent != nil {
		out = append(out, Assignment{Field: FieldCurrentAgent, Value: *u.currentAgent})
	}
	if u.startedAt != nil {
		out = append(out, Assignment{Field: FieldStartedAt, Value: *u.startedAt})
	}
	if u.completedAt != nil {
		out = append(out, Assignment{Field: FieldCompletedAt, Value: *u.completedAt})
	}
	if u.errorData != nil {
		out = append(out, Assignment{Field: FieldErrorData, Value: *u.errorData})
	}
	if u.metadata != nil {
		out = append(out, Assignment{Field: FieldMetadata, Value: *u.metadata})
	}
	return out
}

// State returns the new state when the update sets one.
func (u TaskUpdate) State() (TaskState, bool) {
	if u.state == nil {
		return "", false
	}
	return *u.state, true
}

// ApplyTo writes the set fields onto t. updated_at is left to the caller.
func (u TaskUpdate) ApplyTo(t *Task) {
	if u.state != nil {
		t.State = *u.state
	}
	if u.progress != nil {
		t.Progress = u.progress.Clone()
	}
	if u.currentAgent != nil {
		t.CurrentAgent = *u.currentAgent
	}
	if u.startedAt != nil {
		ts := *u.startedAt
		t.StartedAt = &ts
	}
	if u.completedAt != nil {
		ts := *u.completedAt
		t.CompletedAt = &ts
	}
	if u.errorData != nil {
		t.ErrorData = u.errorData.Clone()
	}
	if u.metadata != nil {
		t.Metadata = u.metadata.Clone()
	}
}
