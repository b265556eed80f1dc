package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

func (s *Store) CreateTask(_ context.Context, id string, req *a2a.CreateTaskRequest) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return nil, fmt.Errorf("create task %s: %w", id, domain.ErrConflict)
	}

	now := s.now()
	t := a2a.Task{
		ID:             id,
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		Type:           req.Type,
		Description:    req.Description,
		Context:        req.Context.OrEmpty().Clone(),
		State:          a2a.TaskStatePending,
		Progress:       a2a.Payload{},
		AssignedAgents: append([]string{}, req.AssignedAgents...),
		Priority:       req.Priority,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       req.Metadata.OrEmpty().Clone(),
	}
	s.tasks[id] = &taskRow{task: t, seq: s.nextSeq()}

	out := cloneTask(&t)
	return &out, nil
}

func (s *Store) UpdateTask(_ context.Context, id string, u a2a.TaskUpdate) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("update task %s: %w", id, domain.ErrNotFound)
	}
	u.ApplyTo(&r.task)
	r.task.UpdatedAt = s.now()

	out := cloneTask(&r.task)
	return &out, nil
}

func (s *Store) GetTask(_ context.Context, id string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	out := cloneTask(&r.task)
	return &out, nil
}

func (s *Store) ListTasksBySession(_ context.Context, sessionID string, state *a2a.TaskState) ([]a2a.Task, error) {
	return s.filterTasks(0, func(t *a2a.Task) bool {
		return t.SessionID == sessionID && (state == nil || t.State == *state)
	}), nil
}

func (s *Store) ListActiveTasks(_ context.Context, userID int64) ([]a2a.Task, error) {
	return s.filterTasks(0, func(t *a2a.Task) bool {
		return t.UserID == userID && t.State.IsActive()
	}), nil
}

func (s *Store) ListUserTasks(_ context.Context, userID int64, limit int) ([]a2a.Task, error) {
	return s.filterTasks(limit, func(t *a2a.Task) bool {
		return t.UserID == userID
	}), nil
}

func (s *Store) filterTasks(limit int, keep func(*a2a.Task) bool) []a2a.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*taskRow
	for _, r := range s.tasks {
		if keep(&r.task) {
			rows = append(rows, r)
		}
	}
	newestFirst(rows,
		func(r *taskRow) time.Time { return r.task.CreatedAt },
		func(r *taskRow) int64 { return r.seq })

	out := make([]a2a.Task, 0, capLimit(len(rows), limit))
	for _, r := range rows[:capLimit(len(rows), limit)] {
		out = append(out, cloneTask(&r.task))
	}
	return out
}
