package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/port/database"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore()
	s.SetClock(clk.now)
	return s, clk
}

func createTask(t *testing.T, s *Store, id, session string, user int64) *a2a.Task {
	t.Helper()
	req := &a2a.CreateTaskRequest{SessionID: session, UserID: user, Type: "research", Description: "find things"}
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	task, err := s.CreateTask(context.Background(), id, req)
	if err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	s, _ := newTestStore()
	task := createTask(t, s, "t1", "s1", 7)

	if task.State != a2a.TaskStatePending {
		t.Errorf("state = %q, want pending", task.State)
	}
	if task.Priority != a2a.PriorityMedium {
		t.Errorf("priority = %q, want medium", task.Priority)
	}
	if task.Progress == nil || len(task.Progress) != 0 {
		t.Errorf("progress = %v, want empty map", task.Progress)
	}

	_, err := s.CreateTask(context.Background(), "t1", &a2a.CreateTaskRequest{SessionID: "s1", UserID: 7})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate create err = %v, want ErrConflict", err)
	}
}

func TestGetTaskAbsent(t *testing.T) {
	s, _ := newTestStore()
	task, err := s.GetTask(context.Background(), "missing")
	if err != nil || task != nil {
		t.Fatalf("GetTask = %v, %v; want nil, nil", task, err)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()
	createTask(t, s, "t1", "s1", 7)

	clk.advance(time.Minute)
	u := a2a.TaskUpdate{}.WithState(a2a.TaskStateProcessing).WithCurrentAgent("researcher")
	got, err := s.UpdateTask(ctx, "t1", u)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.State != a2a.TaskStateProcessing || got.CurrentAgent != "researcher" {
		t.Errorf("got state=%q agent=%q", got.State, got.CurrentAgent)
	}
	if got.Description != "find things" {
		t.Errorf("description changed to %q", got.Description)
	}
	if !got.UpdatedAt.Equal(clk.t) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, clk.t)
	}

	_, err = s.UpdateTask(ctx, "missing", u)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestReturnedTaskIsCopy(t *testing.T) {
	s, _ := newTestStore()
	task := createTask(t, s, "t1", "s1", 7)
	task.Metadata["mutated"] = true

	again, _ := s.GetTask(context.Background(), "t1")
	if _, ok := again.Metadata["mutated"]; ok {
		t.Fatal("caller mutation leaked into store")
	}
}

func TestListTasksOrderingAndFilters(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()

	createTask(t, s, "a", "s1", 1)
	clk.advance(time.Second)
	createTask(t, s, "b", "s1", 1)
	createTask(t, s, "c", "s2", 2)
	_, _ = s.UpdateTask(ctx, "a", a2a.TaskUpdate{}.WithState(a2a.TaskStateCompleted))

	all, _ := s.ListTasksBySession(ctx, "s1", nil)
	if len(all) != 2 || all[0].ID != "b" || all[1].ID != "a" {
		t.Fatalf("session s1 order = %v", ids(all))
	}

	done := a2a.TaskStateCompleted
	completed, _ := s.ListTasksBySession(ctx, "s1", &done)
	if len(completed) != 1 || completed[0].ID != "a" {
		t.Fatalf("completed = %v", ids(completed))
	}

	active, _ := s.ListActiveTasks(ctx, 1)
	if len(active) != 1 || active[0].ID != "b" {
		t.Fatalf("active = %v", ids(active))
	}

	limited, _ := s.ListUserTasks(ctx, 1, 1)
	if len(limited) != 1 || limited[0].ID != "b" {
		t.Fatalf("limited = %v", ids(limited))
	}
}

func ids(tasks []a2a.Task) []string {
	out := make([]string, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].ID
	}
	return out
}

func TestMessageForeignKey(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	req := &a2a.LogMessageRequest{TaskID: "nope", SessionID: "s1", SenderType: "user", MessageType: "query", Content: "hi"}
	_ = req.Validate()
	_, err := s.CreateMessage(ctx, "m1", req)
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrValidation and ErrPersistence", err)
	}

	req.TaskID = ""
	msg, err := s.CreateMessage(ctx, "m1", req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.Status != a2a.MessagePending || msg.ProtocolVersion != a2a.DefaultProtocolVersion {
		t.Errorf("status=%q version=%q", msg.Status, msg.ProtocolVersion)
	}

	updated, err := s.UpdateMessageStatus(ctx, "m1", a2a.MessageCompleted)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.ProcessedAt == nil {
		t.Error("processed_at not set")
	}
}

func TestInteractionDefaults(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()
	createTask(t, s, "t1", "s1", 7)

	req := &a2a.LogInteractionRequest{TaskID: "t1", UserID: 7, AgentName: "planner", ActionType: "plan"}
	if err := req.Validate(clk.t); err != nil {
		t.Fatalf("validate: %v", err)
	}
	in, err := s.CreateInteraction(ctx, "i1", req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !in.Success {
		t.Error("success should default to true")
	}
	if !in.CompletedAt.Equal(clk.t) {
		t.Errorf("completed_at = %v, want %v", in.CompletedAt, clk.t)
	}

	list, _ := s.ListInteractionsByTask(ctx, "t1")
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
}

func TestSessionUpsertKeepsUserAndActivity(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()

	req := &a2a.UpsertSessionRequest{SessionID: "s1", UserID: 7, ActiveTasks: []string{"t1"}}
	_ = req.Validate()
	first, err := s.UpsertSession(ctx, req, time.Hour)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !first.ExpiresAt.Equal(clk.t.Add(time.Hour)) {
		t.Errorf("expires_at = %v", first.ExpiresAt)
	}

	if err := s.DeactivateSession(ctx, "s1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	clk.advance(time.Minute)
	req2 := &a2a.UpsertSessionRequest{SessionID: "s1", UserID: 99, ActiveTasks: []string{"t2"}}
	_ = req2.Validate()
	second, err := s.UpsertSession(ctx, req2, time.Hour)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.UserID != 7 {
		t.Errorf("user_id = %d, want 7", second.UserID)
	}
	if second.IsActive {
		t.Error("upsert must not reactivate a session")
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Error("expires_at changed without being supplied")
	}
	if len(second.ActiveTasks) != 1 || second.ActiveTasks[0] != "t2" {
		t.Errorf("active_tasks = %v", second.ActiveTasks)
	}

	got, _ := s.GetActiveSession(ctx, "s1")
	if got != nil {
		t.Fatal("inactive session returned as active")
	}
}

func TestTouchAndDeactivateMissing(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.TouchSession(ctx, "missing"); err != nil {
		t.Fatalf("touch missing: %v", err)
	}
	if err := s.DeactivateSession(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deactivate missing err = %v, want ErrNotFound", err)
	}
}

func TestListActiveSessions(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		req := &a2a.UpsertSessionRequest{SessionID: id, UserID: 7}
		_ = req.Validate()
		if _, err := s.UpsertSession(ctx, req, time.Hour); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		clk.advance(time.Second)
	}
	createTask(t, s, "t1", "s1", 7)
	createTask(t, s, "t2", "s1", 7)
	_, _ = s.UpdateTask(ctx, "t2", a2a.TaskUpdate{}.WithState(a2a.TaskStateFailed))

	sums, err := s.ListActiveSessions(ctx, nil, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sums) != 2 || sums[0].SessionID != "s2" {
		t.Fatalf("order = %+v", sums)
	}
	if sums[1].ActiveTaskCount != 1 || sums[1].Tasks[0].TaskID != "t1" {
		t.Errorf("s1 tasks = %+v", sums[1].Tasks)
	}

	clk.advance(2 * time.Hour)
	sums, _ = s.ListActiveSessions(ctx, nil, 0)
	if len(sums) != 0 {
		t.Fatalf("expired sessions listed: %+v", sums)
	}
}

func TestInTxExpiresAndArchives(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()

	req := &a2a.UpsertSessionRequest{SessionID: "s1", UserID: 7}
	_ = req.Validate()
	_, _ = s.UpsertSession(ctx, req, time.Hour)

	createTask(t, s, "old", "s1", 7)
	_, _ = s.UpdateTask(ctx, "old", a2a.TaskUpdate{}.
		WithState(a2a.TaskStateCompleted).
		WithCompletedAt(clk.t))
	createTask(t, s, "running", "s1", 7)

	clk.advance(31 * 24 * time.Hour)
	var expired, archived int64
	err := s.InTx(ctx, func(tx database.Tx) error {
		var err error
		if expired, err = tx.ExpireSessions(ctx, clk.t); err != nil {
			return err
		}
		archived, err = tx.ArchiveTasks(ctx, clk.t.Add(-a2a.DefaultArchiveAfter))
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if expired != 1 || archived != 1 {
		t.Fatalf("expired=%d archived=%d, want 1 and 1", expired, archived)
	}

	old, _ := s.GetTask(ctx, "old")
	if !old.Metadata.Archived() {
		t.Error("old task not archived")
	}

	// A second pass finds nothing new.
	_ = s.InTx(ctx, func(tx database.Tx) error {
		archived, _ = tx.ArchiveTasks(ctx, clk.t.Add(-a2a.DefaultArchiveAfter))
		return nil
	})
	if archived != 0 {
		t.Errorf("re-archived %d tasks", archived)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()

	req := &a2a.UpsertSessionRequest{SessionID: "s1", UserID: 7}
	_ = req.Validate()
	_, _ = s.UpsertSession(ctx, req, time.Hour)
	clk.advance(2 * time.Hour)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx database.Tx) error {
		if _, err := tx.ExpireSessions(ctx, clk.t); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, _ := s.GetActiveSession(ctx, "s1")
	if got == nil || !got.IsActive {
		t.Fatal("expiry was not rolled back")
	}
}

func TestStats(t *testing.T) {
	s, clk := newTestStore()
	ctx := context.Background()

	createTask(t, s, "t1", "s1", 7)
	createTask(t, s, "t2", "s1", 7)
	_, _ = s.UpdateTask(ctx, "t2", a2a.TaskUpdate{}.WithState(a2a.TaskStateCompleted).WithCompletedAt(clk.t))

	req := &a2a.UpsertSessionRequest{SessionID: "s1", UserID: 7}
	_ = req.Validate()
	_, _ = s.UpsertSession(ctx, req, time.Hour)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalTasks != 2 || st.ActiveTasks != 1 || st.ActiveSessions != 1 || st.ExpiredSessions != 0 {
		t.Fatalf("stats = %+v", st)
	}

	pm, _ := s.PerformanceMetrics(ctx, clk.t.Add(-time.Hour))
	if pm.TotalTasks != 2 || pm.CompletedTasks != 1 || pm.SuccessRate != 50 {
		t.Fatalf("performance = %+v", pm)
	}
}
