package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

// UpsertSession inserts or updates the row keyed by req.SessionID. On
// update user and activity flag are kept; expiry only changes when supplied.
func (s *Store) UpsertSession(_ context.Context, req *a2a.UpsertSessionRequest, defaultTTL time.Duration) (*a2a.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r, ok := s.sessions[req.SessionID]
	if !ok {
		expires := now.Add(defaultTTL)
		if req.ExpiresAt != nil {
			expires = *req.ExpiresAt
		}
		r = &sessionRow{
			s: a2a.SessionState{
				SessionID:      req.SessionID,
				UserID:         req.UserID,
				ConversationID: req.ConversationID,
				ExpiresAt:      expires,
				IsActive:       true,
				CreatedAt:      now,
			},
			seq: s.nextSeq(),
		}
		s.sessions[req.SessionID] = r
	} else {
		if req.ConversationID != nil {
			r.s.ConversationID = req.ConversationID
		}
		if req.ExpiresAt != nil {
			r.s.ExpiresAt = *req.ExpiresAt
		}
	}

	r.s.ActiveTasks = append([]string{}, req.ActiveTasks...)
	r.s.Context = req.Context.OrEmpty().Clone()
	r.s.OrchestratorState = req.OrchestratorState.OrEmpty().Clone()
	r.s.Metadata = req.Metadata.OrEmpty().Clone()
	r.s.LastActivity = now
	r.s.UpdatedAt = now

	out := cloneSession(&r.s)
	return &out, nil
}

func (s *Store) GetActiveSession(_ context.Context, sessionID string) (*a2a.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.sessions[sessionID]
	if !ok || !r.s.IsActive {
		return nil, nil
	}
	out := cloneSession(&r.s)
	return &out, nil
}

func (s *Store) TouchSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.sessions[sessionID]; ok && r.s.IsActive {
		now := s.now()
		r.s.LastActivity = now
		r.s.UpdatedAt = now
	}
	return nil
}

func (s *Store) DeactivateSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("deactivate session %s: %w", sessionID, domain.ErrNotFound)
	}
	r.s.IsActive = false
	r.s.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetSessionTasks(_ context.Context, sessionID string, taskIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[sessionID]
	if !ok || !r.s.IsActive {
		return fmt.Errorf("set session tasks %s: %w", sessionID, domain.ErrNotFound)
	}
	now := s.now()
	r.s.ActiveTasks = append([]string{}, taskIDs...)
	r.s.LastActivity = now
	r.s.UpdatedAt = now
	return nil
}

// ListActiveSessions mirrors the a2a_active_sessions view: active, unexpired
// sessions with their in-flight tasks, most recent activity first.
func (s *Store) ListActiveSessions(_ context.Context, userID *int64, limit int) ([]a2a.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var rows []*sessionRow
	for _, r := range s.sessions {
		if !r.s.IsActive || !r.s.ExpiresAt.After(now) {
			continue
		}
		if userID != nil && r.s.UserID != *userID {
			continue
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		li, lj := rows[i].s.LastActivity, rows[j].s.LastActivity
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return rows[i].seq > rows[j].seq
	})

	n := capLimit(len(rows), limit)
	out := make([]a2a.SessionSummary, 0, n)
	for _, r := range rows[:n] {
		sum := a2a.SessionSummary{
			SessionID:      r.s.SessionID,
			UserID:         r.s.UserID,
			ConversationID: r.s.ConversationID,
			LastActivity:   r.s.LastActivity,
			SessionCreated: r.s.CreatedAt,
			Tasks:          []a2a.SessionTask{},
		}
		for _, tr := range s.tasks {
			t := &tr.task
			if t.SessionID != r.s.SessionID || !t.State.IsActive() {
				continue
			}
			sum.Tasks = append(sum.Tasks, a2a.SessionTask{
				TaskID:       t.ID,
				TaskType:     t.Type,
				TaskState:    t.State,
				CurrentAgent: t.CurrentAgent,
				CreatedAt:    t.CreatedAt,
			})
		}
		sort.Slice(sum.Tasks, func(i, j int) bool { return sum.Tasks[i].CreatedAt.After(sum.Tasks[j].CreatedAt) })
		sum.ActiveTaskCount = len(sum.Tasks)
		out = append(out, sum)
	}
	return out, nil
}
