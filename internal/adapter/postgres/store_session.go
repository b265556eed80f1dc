package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

const sessionColumns = `session_id, user_id, conversation_id, active_tasks, session_context,
	orchestrator_state, last_activity, expires_at, is_active, metadata, created_at, updated_at`

func scanSession(row scannable) (a2a.SessionState, error) {
	var ss a2a.SessionState
	err := row.Scan(&ss.SessionID, &ss.UserID, &ss.ConversationID, &ss.ActiveTasks, &ss.Context,
		&ss.OrchestratorState, &ss.LastActivity, &ss.ExpiresAt, &ss.IsActive, &ss.Metadata,
		&ss.CreatedAt, &ss.UpdatedAt)
	if err != nil {
		return ss, err
	}
	ss.ActiveTasks = orEmpty(ss.ActiveTasks)
	ss.Context = ss.Context.OrEmpty()
	ss.OrchestratorState = ss.OrchestratorState.OrEmpty()
	ss.Metadata = ss.Metadata.OrEmpty()
	ss.LastActivity = ss.LastActivity.UTC()
	ss.ExpiresAt = ss.ExpiresAt.UTC()
	ss.CreatedAt = ss.CreatedAt.UTC()
	ss.UpdatedAt = ss.UpdatedAt.UTC()
	return ss, nil
}

// UpsertSession inserts a session or replaces its mutable state. user_id
// and is_active are left alone on conflict; expires_at only moves when the
// caller supplies one.
func (s *Store) UpsertSession(ctx context.Context, req *a2a.UpsertSessionRequest, defaultTTL time.Duration) (*a2a.SessionState, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO a2a_session_state (session_id, user_id, conversation_id, active_tasks,
		                                session_context, orchestrator_state, expires_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW() + make_interval(secs => $8)), $9)
		 ON CONFLICT (session_id) DO UPDATE SET
		     conversation_id    = COALESCE(EXCLUDED.conversation_id, a2a_session_state.conversation_id),
		     active_tasks       = EXCLUDED.active_tasks,
		     session_context    = EXCLUDED.session_context,
		     orchestrator_state = EXCLUDED.orchestrator_state,
		     last_activity      = NOW(),
		     expires_at         = COALESCE($7, a2a_session_state.expires_at),
		     metadata           = EXCLUDED.metadata
		 RETURNING `+sessionColumns,
		req.SessionID, req.UserID, req.ConversationID, orEmpty(req.ActiveTasks),
		req.Context.OrEmpty(), req.OrchestratorState.OrEmpty(), req.ExpiresAt,
		defaultTTL.Seconds(), req.Metadata.OrEmpty())

	ss, err := scanSession(row)
	if err != nil {
		return nil, storeErr(err, "upsert session %s", req.SessionID)
	}
	return &ss, nil
}

func (s *Store) GetActiveSession(ctx context.Context, sessionID string) (*a2a.SessionState, error) {
	ss, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM a2a_session_state
		 WHERE session_id = $1 AND is_active = true`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get session %s", sessionID)
	}
	return &ss, nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE a2a_session_state SET last_activity = NOW()
		 WHERE session_id = $1 AND is_active = true`, sessionID)
	if err != nil {
		return storeErr(err, "touch session %s", sessionID)
	}
	return nil
}

func (s *Store) DeactivateSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE a2a_session_state SET is_active = false WHERE session_id = $1`, sessionID)
	return execExpectOne(tag, err, "deactivate session %s", sessionID)
}

func (s *Store) SetSessionTasks(ctx context.Context, sessionID string, taskIDs []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE a2a_session_state SET active_tasks = $2, last_activity = NOW()
		 WHERE session_id = $1 AND is_active = true`, sessionID, orEmpty(taskIDs))
	return execExpectOne(tag, err, "set session tasks %s", sessionID)
}

func (s *Store) ListActiveSessions(ctx context.Context, userID *int64, limit int) ([]a2a.SessionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, user_id, conversation_id, last_activity, session_created,
		        active_task_count, tasks
		 FROM a2a_active_sessions
		 WHERE $1::bigint IS NULL OR user_id = $1
		 ORDER BY last_activity DESC
		 LIMIT NULLIF($2, 0)`, userID, limit)
	if err != nil {
		return nil, storeErr(err, "list active sessions")
	}
	defer rows.Close()

	out := []a2a.SessionSummary{}
	for rows.Next() {
		var sum a2a.SessionSummary
		var count int64
		if err := rows.Scan(&sum.SessionID, &sum.UserID, &sum.ConversationID, &sum.LastActivity,
			&sum.SessionCreated, &count, &sum.Tasks); err != nil {
			return nil, storeErr(err, "scan active session")
		}
		sum.ActiveTaskCount = int(count)
		sum.Tasks = orEmpty(sum.Tasks)
		sum.LastActivity = sum.LastActivity.UTC()
		sum.SessionCreated = sum.SessionCreated.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "list active sessions")
	}
	return out, nil
}
