package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Strob0t/agentrelay/internal/adapter/ws"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
)

// UpsertSessionState inserts or updates the session row. On update the
// stored expiry is kept unless req sets one.
func (s *A2AService) UpsertSessionState(ctx context.Context, req a2a.UpsertSessionRequest) (*a2a.SessionState, error) { //nolint:gocritic // hugeParam: request copied so defaults do not leak to the caller
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	ctx, done := s.track(ctx, "upsert_session", req.SessionID)
	ss, err := s.store.UpsertSession(ctx, &req, s.cfg.SessionTTL)
	done(err)
	if err != nil {
		return nil, err
	}

	s.announceSession(ctx, messagequeue.SubjectSessionUpserted, ss.SessionID, ss.UserID, ss.IsActive)
	return ss, nil
}

// GetSessionState returns the active session, or nil when it is missing
// or inactive.
func (s *A2AService) GetSessionState(ctx context.Context, sessionID string) (*a2a.SessionState, error) {
	ctx, done := s.track(ctx, "get_session", sessionID)
	ss, err := s.store.GetActiveSession(ctx, sessionID)
	done(err)
	return ss, err
}

// UpdateSessionActivity bumps last_activity of an active session. Missing
// and inactive sessions are left alone.
func (s *A2AService) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	ctx, done := s.track(ctx, "touch_session", sessionID)
	err := s.store.TouchSession(ctx, sessionID)
	done(err)
	return err
}

// DeactivateSession marks the session inactive.
func (s *A2AService) DeactivateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("deactivate session: %w: session_id is required", domain.ErrValidation)
	}
	ctx, done := s.track(ctx, "deactivate_session", sessionID)
	err := s.store.DeactivateSession(ctx, sessionID)
	done(err)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "a2a session deactivated", "session_id", sessionID)
	s.announceSession(ctx, messagequeue.SubjectSessionDeactivated, sessionID, 0, false)
	return nil
}

// GetActiveSessions reads the active-sessions view, optionally for one
// user, most recent activity first.
func (s *A2AService) GetActiveSessions(ctx context.Context, userID *int64) ([]a2a.SessionSummary, error) {
	ctx, done := s.track(ctx, "list_active_sessions", "")
	out, err := s.store.ListActiveSessions(ctx, userID, s.cfg.ActiveSessionsLimit)
	done(err)
	return out, err
}

// AddTaskToSession appends taskID to the session's active tasks. Adding a
// tracked task only refreshes the activity timestamp.
func (s *A2AService) AddTaskToSession(ctx context.Context, sessionID, taskID string) error {
	if sessionID == "" || taskID == "" {
		return fmt.Errorf("add session task: %w: session_id and task_id are required", domain.ErrValidation)
	}
	ss, err := s.activeSession(ctx, "add session task", sessionID)
	if err != nil {
		return err
	}
	if ss.HasTask(taskID) {
		return s.UpdateSessionActivity(ctx, sessionID)
	}
	return s.setSessionTasks(ctx, sessionID, append(ss.ActiveTasks, taskID))
}

// RemoveTaskFromSession drops taskID from the session's active tasks.
func (s *A2AService) RemoveTaskFromSession(ctx context.Context, sessionID, taskID string) error {
	if sessionID == "" || taskID == "" {
		return fmt.Errorf("remove session task: %w: session_id and task_id are required", domain.ErrValidation)
	}
	ss, err := s.activeSession(ctx, "remove session task", sessionID)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(slices.Clone(ss.ActiveTasks), func(id string) bool { return id == taskID })
	return s.setSessionTasks(ctx, sessionID, kept)
}

func (s *A2AService) activeSession(ctx context.Context, op, sessionID string) (*a2a.SessionState, error) {
	ss, err := s.GetSessionState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ss == nil {
		return nil, fmt.Errorf("%s %s: %w", op, sessionID, domain.ErrNotFound)
	}
	return ss, nil
}

func (s *A2AService) setSessionTasks(ctx context.Context, sessionID string, taskIDs []string) error {
	ctx, done := s.track(ctx, "set_session_tasks", sessionID)
	err := s.store.SetSessionTasks(ctx, sessionID, taskIDs)
	done(err)
	return err
}

func (s *A2AService) announceSession(ctx context.Context, subject, sessionID string, userID int64, active bool) {
	payload := messagequeue.SessionEventPayload{
		SessionID: sessionID,
		UserID:    userID,
		IsActive:  active,
	}
	s.publish(ctx, subject, payload)
	s.broadcast(ctx, ws.EventSession, payload)
}
