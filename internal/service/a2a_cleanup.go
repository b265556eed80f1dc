package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/agentrelay/internal/adapter/ws"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/port/database"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
)

// Cleanup expires overdue sessions and archives terminal tasks older than
// the archive window in one transaction. Either both take effect or
// neither does.
func (s *A2AService) Cleanup(ctx context.Context) (*a2a.CleanupResult, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.ArchiveAfter)
	res := &a2a.CleanupResult{RanAt: now}

	ctx, done := s.track(ctx, "cleanup", "")
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		expired, err := tx.ExpireSessions(ctx, now)
		if err != nil {
			return fmt.Errorf("expire sessions: %w", err)
		}
		archived, err := tx.ArchiveTasks(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive tasks: %w", err)
		}
		res.ExpiredSessions = expired
		res.ArchivedTasks = archived
		return nil
	})
	done(err)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsExpired.Add(ctx, res.ExpiredSessions)
		s.metrics.TasksArchived.Add(ctx, res.ArchivedTasks)
	}
	slog.InfoContext(ctx, "a2a cleanup completed",
		"expired_sessions", res.ExpiredSessions,
		"archived_tasks", res.ArchivedTasks,
	)

	payload := messagequeue.CleanupCompletedPayload{
		ExpiredSessions: res.ExpiredSessions,
		ArchivedTasks:   res.ArchivedTasks,
		RanAt:           res.RanAt,
	}
	s.publish(ctx, messagequeue.SubjectCleanupCompleted, payload)
	s.broadcast(ctx, ws.EventCleanup, payload)
	return res, nil
}

// RunJanitor calls Cleanup every interval until ctx is done. Failed sweeps
// are logged and retried on the next tick.
func (s *A2AService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.CleanupInterval
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("a2a janitor started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("a2a janitor stopped")
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx); err != nil {
				slog.Error("a2a janitor sweep failed", "error", err)
			}
		}
	}
}
