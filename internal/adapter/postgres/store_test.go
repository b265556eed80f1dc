package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/agentrelay/internal/adapter/postgres"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/port/database"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	// Run goose migrations first (uses embedded SQL files).
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// uniqueSession returns a session id that does not collide across runs.
func uniqueSession() string {
	return "sess-" + uuid.New().String()[:8]
}

func createTask(t *testing.T, store *postgres.Store, sessionID string, userID int64) *a2a.Task {
	t.Helper()
	req := &a2a.CreateTaskRequest{
		SessionID:   sessionID,
		UserID:      userID,
		Type:        "valuation",
		Description: "estimate business value",
		Context:     a2a.Payload{"industry": "retail"},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	task, err := store.CreateTask(context.Background(), uuid.New().String(), req)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

// --------------------------------------------------------------------------
// TestStore_TaskLifecycle
// --------------------------------------------------------------------------

func TestStore_TaskLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	sessionID := uniqueSession()

	created := createTask(t, store, sessionID, 42)
	if created.State != a2a.TaskStatePending {
		t.Fatalf("expected pending, got %q", created.State)
	}
	if created.Context["industry"] != "retail" {
		t.Fatalf("expected task_context round trip, got %v", created.Context)
	}

	t.Run("PartialUpdate", func(t *testing.T) {
		started := time.Now().UTC().Truncate(time.Second)
		u := a2a.TaskUpdate{}.
			WithState(a2a.TaskStateProcessing).
			WithCurrentAgent("valuation-agent").
			WithStartedAt(started)
		got, err := store.UpdateTask(ctx, created.ID, u)
		if err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		if got.State != a2a.TaskStateProcessing || got.CurrentAgent != "valuation-agent" {
			t.Fatalf("unexpected task after update: %+v", got)
		}
		if got.Description != created.Description {
			t.Fatalf("description changed: %q", got.Description)
		}
		if got.StartedAt == nil || !got.StartedAt.Equal(started) {
			t.Fatalf("started_at = %v, want %v", got.StartedAt, started)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		_, err := store.UpdateTask(ctx, uuid.New().String(), a2a.TaskUpdate{}.WithState(a2a.TaskStateFailed))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.GetTask(ctx, uuid.New().String())
		if err != nil || got != nil {
			t.Fatalf("expected nil, nil; got %v, %v", got, err)
		}
	})

	t.Run("ListBySessionAndState", func(t *testing.T) {
		second := createTask(t, store, sessionID, 42)
		all, err := store.ListTasksBySession(ctx, sessionID, nil)
		if err != nil {
			t.Fatalf("ListTasksBySession: %v", err)
		}
		if len(all) != 2 || all[0].ID != second.ID {
			t.Fatalf("expected newest first, got %d tasks", len(all))
		}

		pending := a2a.TaskStatePending
		filtered, err := store.ListTasksBySession(ctx, sessionID, &pending)
		if err != nil {
			t.Fatalf("ListTasksBySession(pending): %v", err)
		}
		if len(filtered) != 1 || filtered[0].ID != second.ID {
			t.Fatalf("expected only the pending task, got %d", len(filtered))
		}
	})
}

// --------------------------------------------------------------------------
// TestStore_MessageForeignKey
// --------------------------------------------------------------------------

func TestStore_MessageForeignKey(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	req := &a2a.LogMessageRequest{
		TaskID:      uuid.New().String(),
		SessionID:   uniqueSession(),
		SenderType:  "user",
		MessageType: "task_request",
		Content:     "value my shop",
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	_, err := store.CreateMessage(ctx, uuid.New().String(), req)
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected validation persistence error, got %v", err)
	}
}

// --------------------------------------------------------------------------
// TestStore_SessionUpsert
// --------------------------------------------------------------------------

func TestStore_SessionUpsert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	sessionID := uniqueSession()

	req := &a2a.UpsertSessionRequest{SessionID: sessionID, UserID: 7, ActiveTasks: []string{"a"}}
	_ = req.Validate()
	first, err := store.UpsertSession(ctx, req, time.Hour)
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if !first.IsActive {
		t.Fatal("new session should be active")
	}

	req2 := &a2a.UpsertSessionRequest{SessionID: sessionID, UserID: 99, ActiveTasks: []string{"b"}}
	_ = req2.Validate()
	second, err := store.UpsertSession(ctx, req2, time.Hour)
	if err != nil {
		t.Fatalf("UpsertSession again: %v", err)
	}
	if second.UserID != 7 {
		t.Fatalf("user_id must not change on conflict, got %d", second.UserID)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("expires_at moved without being supplied")
	}
	if len(second.ActiveTasks) != 1 || second.ActiveTasks[0] != "b" {
		t.Fatalf("active_tasks = %v", second.ActiveTasks)
	}

	if err := store.DeactivateSession(ctx, sessionID); err != nil {
		t.Fatalf("DeactivateSession: %v", err)
	}
	got, err := store.GetActiveSession(ctx, sessionID)
	if err != nil || got != nil {
		t.Fatalf("expected no active session, got %v, %v", got, err)
	}

	if err := store.DeactivateSession(ctx, uniqueSession()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}

// --------------------------------------------------------------------------
// TestStore_CleanupRollback
// --------------------------------------------------------------------------

func TestStore_CleanupRollback(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	sessionID := uniqueSession()

	past := time.Now().Add(-time.Hour)
	req := &a2a.UpsertSessionRequest{SessionID: sessionID, UserID: 7, ExpiresAt: &past}
	_ = req.Validate()
	if _, err := store.UpsertSession(ctx, req, time.Hour); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx database.Tx) error {
		if _, err := tx.ExpireSessions(ctx, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.GetActiveSession(ctx, sessionID)
	if err != nil || got == nil {
		t.Fatalf("session should still be active after rollback, got %v, %v", got, err)
	}
}
