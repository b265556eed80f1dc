// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

// Store is the port interface for A2A persistence.
// Lookups of a single record return (nil, nil) when it does not exist;
// writes against a missing record return domain.ErrNotFound.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, id string, req *a2a.CreateTaskRequest) (*a2a.Task, error)
	UpdateTask(ctx context.Context, id string, u a2a.TaskUpdate) (*a2a.Task, error)
	GetTask(ctx context.Context, id string) (*a2a.Task, error)
	ListTasksBySession(ctx context.Context, sessionID string, state *a2a.TaskState) ([]a2a.Task, error)
	ListActiveTasks(ctx context.Context, userID int64) ([]a2a.Task, error)
	ListUserTasks(ctx context.Context, userID int64, limit int) ([]a2a.Task, error)

	// Messages
	CreateMessage(ctx context.Context, id string, req *a2a.LogMessageRequest) (*a2a.Message, error)
	ListMessagesByTask(ctx context.Context, taskID string, limit int) ([]a2a.Message, error)
	ListMessagesBySession(ctx context.Context, sessionID string, limit int) ([]a2a.Message, error)
	UpdateMessageStatus(ctx context.Context, id string, status a2a.ProcessingStatus) (*a2a.Message, error)

	// Agent interactions
	CreateInteraction(ctx context.Context, id string, req *a2a.LogInteractionRequest) (*a2a.Interaction, error)
	ListInteractionsByTask(ctx context.Context, taskID string) ([]a2a.Interaction, error)

	// Session state
	UpsertSession(ctx context.Context, req *a2a.UpsertSessionRequest, defaultTTL time.Duration) (*a2a.SessionState, error)
	GetActiveSession(ctx context.Context, sessionID string) (*a2a.SessionState, error)
	TouchSession(ctx context.Context, sessionID string) error
	DeactivateSession(ctx context.Context, sessionID string) error
	SetSessionTasks(ctx context.Context, sessionID string, taskIDs []string) error
	ListActiveSessions(ctx context.Context, userID *int64, limit int) ([]a2a.SessionSummary, error)

	// Aggregates
	Stats(ctx context.Context) (*a2a.Stats, error)
	InteractionStats(ctx context.Context, userID int64, since time.Time) (*a2a.InteractionStats, error)
	PerformanceMetrics(ctx context.Context, since time.Time) (*a2a.PerformanceMetrics, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of maintenance writes that must run atomically.
type Tx interface {
	// ExpireSessions deactivates active sessions whose expiry is before now.
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)

	// ArchiveTasks flags terminal tasks completed before cutoff as archived.
	// Already archived tasks are skipped.
	ArchiveTasks(ctx context.Context, cutoff time.Time) (int64, error)
}
