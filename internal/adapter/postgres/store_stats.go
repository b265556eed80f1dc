package postgres

import (
	"context"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

func (s *Store) Stats(ctx context.Context) (*a2a.Stats, error) {
	var st a2a.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM a2a_tasks),
		     (SELECT COUNT(*) FROM a2a_tasks WHERE task_state IN ('pending', 'processing', 'active')),
		     (SELECT COUNT(*) FROM a2a_messages),
		     (SELECT COUNT(*) FROM a2a_agent_interactions),
		     (SELECT COUNT(*) FROM a2a_session_state WHERE is_active = true),
		     (SELECT COUNT(*) FROM a2a_session_state WHERE expires_at < NOW())`,
	).Scan(&st.TotalTasks, &st.ActiveTasks, &st.TotalMessages, &st.TotalInteractions,
		&st.ActiveSessions, &st.ExpiredSessions)
	if err != nil {
		return nil, storeErr(err, "get stats")
	}
	return &st, nil
}

func (s *Store) InteractionStats(ctx context.Context, userID int64, since time.Time) (*a2a.InteractionStats, error) {
	st := a2a.InteractionStats{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE success),
		        AVG(execution_time_ms)::double precision,
		        COUNT(DISTINCT agent_name),
		        COALESCE(ARRAY_AGG(DISTINCT action_type ORDER BY action_type), '{}')
		 FROM a2a_agent_interactions
		 WHERE user_id = $1 AND created_at >= $2`, userID, since,
	).Scan(&st.Total, &st.Successful, &st.AvgExecutionMS, &st.UniqueAgents, &st.ActionTypes)
	if err != nil {
		return nil, storeErr(err, "get interaction stats for user %d", userID)
	}
	st.ActionTypes = orEmpty(st.ActionTypes)
	return &st, nil
}

func (s *Store) PerformanceMetrics(ctx context.Context, since time.Time) (*a2a.PerformanceMetrics, error) {
	var m a2a.PerformanceMetrics
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE task_state = 'completed'),
		        COUNT(*) FILTER (WHERE task_state = 'failed'),
		        AVG(EXTRACT(EPOCH FROM (completed_at - created_at)))::double precision,
		        COUNT(DISTINCT user_id),
		        COUNT(DISTINCT current_agent)
		 FROM a2a_tasks
		 WHERE created_at >= $1`, since,
	).Scan(&m.TotalTasks, &m.CompletedTasks, &m.FailedTasks, &m.AvgCompletionSeconds,
		&m.UniqueUsers, &m.AgentsUsed)
	if err != nil {
		return nil, storeErr(err, "get performance metrics")
	}
	m.ComputeSuccessRate()
	return &m, nil
}
