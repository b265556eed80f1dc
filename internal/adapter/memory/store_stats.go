package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

func (s *Store) Stats(_ context.Context) (*a2a.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	st := &a2a.Stats{
		TotalTasks:        int64(len(s.tasks)),
		TotalMessages:     int64(len(s.messages)),
		TotalInteractions: int64(len(s.interactions)),
	}
	for _, r := range s.tasks {
		if r.task.State.IsActive() {
			st.ActiveTasks++
		}
	}
	for _, r := range s.sessions {
		if r.s.IsActive {
			st.ActiveSessions++
		}
		if r.s.ExpiresAt.Before(now) {
			st.ExpiredSessions++
		}
	}
	return st, nil
}

func (s *Store) InteractionStats(_ context.Context, userID int64, since time.Time) (*a2a.InteractionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &a2a.InteractionStats{UserID: userID, ActionTypes: []string{}}
	agents := map[string]struct{}{}
	actions := map[string]struct{}{}
	var execSum float64
	var execN int
	for _, r := range s.interactions {
		in := &r.in
		if in.UserID != userID || in.CreatedAt.Before(since) {
			continue
		}
		st.Total++
		if in.Success {
			st.Successful++
		}
		if in.ExecutionTimeMS != nil {
			execSum += float64(*in.ExecutionTimeMS)
			execN++
		}
		agents[in.AgentName] = struct{}{}
		actions[in.ActionType] = struct{}{}
	}
	if execN > 0 {
		avg := execSum / float64(execN)
		st.AvgExecutionMS = &avg
	}
	st.UniqueAgents = int64(len(agents))
	for a := range actions {
		st.ActionTypes = append(st.ActionTypes, a)
	}
	sort.Strings(st.ActionTypes)
	return st, nil
}

func (s *Store) PerformanceMetrics(_ context.Context, since time.Time) (*a2a.PerformanceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &a2a.PerformanceMetrics{}
	users := map[int64]struct{}{}
	agents := map[string]struct{}{}
	var durSum float64
	var durN int
	for _, r := range s.tasks {
		t := &r.task
		if t.CreatedAt.Before(since) {
			continue
		}
		m.TotalTasks++
		switch t.State {
		case a2a.TaskStateCompleted:
			m.CompletedTasks++
		case a2a.TaskStateFailed:
			m.FailedTasks++
		}
		if t.CompletedAt != nil {
			durSum += t.CompletedAt.Sub(t.CreatedAt).Seconds()
			durN++
		}
		users[t.UserID] = struct{}{}
		if t.CurrentAgent != "" {
			agents[t.CurrentAgent] = struct{}{}
		}
	}
	if durN > 0 {
		avg := durSum / float64(durN)
		m.AvgCompletionSeconds = &avg
	}
	m.UniqueUsers = int64(len(users))
	m.AgentsUsed = int64(len(agents))
	m.ComputeSuccessRate()
	return m, nil
}
