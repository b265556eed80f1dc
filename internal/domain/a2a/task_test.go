package a2a

import (
	"errors"
	"testing"
	"time"

	a2aproto "github.com/a2aproject/a2a-go/a2a"

	"github.com/Strob0t/agentrelay/internal/domain"
)

func TestCreateTaskRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateTaskRequest
		wantErr bool
	}{
		{"valid", CreateTaskRequest{SessionID: "s1", UserID: 1, Type: "search", Description: "find"}, false},
		{"missing session", CreateTaskRequest{UserID: 1, Type: "search", Description: "find"}, true},
		{"missing user", CreateTaskRequest{SessionID: "s1", Type: "search", Description: "find"}, true},
		{"missing type", CreateTaskRequest{SessionID: "s1", UserID: 1, Description: "find"}, true},
		{"missing description", CreateTaskRequest{SessionID: "s1", UserID: 1, Type: "search"}, true},
		{"bad priority", CreateTaskRequest{SessionID: "s1", UserID: 1, Type: "search", Description: "find", Priority: "urgent"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateTaskRequestDefaults(t *testing.T) {
	req := CreateTaskRequest{SessionID: "s1", UserID: 1, Type: "search", Description: "find"}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if req.Priority != PriorityMedium {
		t.Errorf("priority = %q, want medium", req.Priority)
	}
	if req.Context == nil || req.Metadata == nil {
		t.Error("expected empty context and metadata maps")
	}
	if req.AssignedAgents == nil || len(req.AssignedAgents) != 0 {
		t.Errorf("assigned agents = %v, want empty slice", req.AssignedAgents)
	}
}

func TestTaskUpdateEmpty(t *testing.T) {
	var u TaskUpdate
	if !u.IsEmpty() {
		t.Fatal("zero TaskUpdate should be empty")
	}
	if err := u.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTaskUpdateInvalidState(t *testing.T) {
	u := TaskUpdate{}.WithState("exploded")
	if err := u.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTaskUpdateAssignmentsOrder(t *testing.T) {
	now := time.Now()
	u := TaskUpdate{}.
		WithMetadata(Payload{"k": "v"}).
		WithCompletedAt(now).
		WithState(TaskStateCompleted)

	got := u.Assignments()
	want := []TaskField{FieldTaskState, FieldCompletedAt, FieldMetadata}
	if len(got) != len(want) {
		t.Fatalf("expected %d assignments, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Field != want[i] {
			t.Errorf("assignment %d = %s, want %s", i, got[i].Field, want[i])
		}
	}
}

func TestTaskUpdateApplyTo(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task := Task{ID: "t1", State: TaskStatePending, Metadata: Payload{}}

	TaskUpdate{}.
		WithState(TaskStateProcessing).
		WithCurrentAgent("broker").
		WithStartedAt(started).
		WithProgress(Payload{"pct": 10.0}).
		ApplyTo(&task)

	if task.State != TaskStateProcessing {
		t.Errorf("state = %q", task.State)
	}
	if task.CurrentAgent != "broker" {
		t.Errorf("current agent = %q", task.CurrentAgent)
	}
	if task.StartedAt == nil || !task.StartedAt.Equal(started) {
		t.Errorf("started_at = %v", task.StartedAt)
	}
	if pct, _ := task.Progress.Int("pct"); pct != 10 {
		t.Errorf("progress pct = %d", pct)
	}
	if task.CompletedAt != nil {
		t.Error("completed_at should stay unset")
	}
}

func TestTaskStateClassification(t *testing.T) {
	for _, s := range ActiveTaskStates {
		if !s.IsActive() || s.IsTerminal() {
			t.Errorf("%s should be active only", s)
		}
	}
	for _, s := range TerminalTaskStates {
		if s.IsActive() || !s.IsTerminal() {
			t.Errorf("%s should be terminal only", s)
		}
	}
}

func TestProtocolStateRoundTrip(t *testing.T) {
	tests := []struct {
		state TaskState
		proto a2aproto.TaskState
		back  TaskState
	}{
		{TaskStatePending, a2aproto.TaskStateSubmitted, TaskStatePending},
		{TaskStateActive, a2aproto.TaskStateWorking, TaskStateProcessing},
		{TaskStateCompleted, a2aproto.TaskStateCompleted, TaskStateCompleted},
		{TaskStateFailed, a2aproto.TaskStateFailed, TaskStateFailed},
		{TaskStateCancelled, a2aproto.TaskStateCanceled, TaskStateCancelled},
	}
	for _, tt := range tests {
		if got := tt.state.ProtocolState(); got != tt.proto {
			t.Errorf("%s.ProtocolState() = %s, want %s", tt.state, got, tt.proto)
		}
		back, ok := FromProtocolState(tt.proto)
		if !ok || back != tt.back {
			t.Errorf("FromProtocolState(%s) = %s, %v", tt.proto, back, ok)
		}
	}
}
