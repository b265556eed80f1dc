package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

const taskColumns = `task_id, session_id, user_id, task_type, task_description, task_context,
	task_state, progress_data, assigned_agents, current_agent, priority, created_at,
	updated_at, started_at, completed_at, error_data, metadata`

func scanTask(row scannable) (a2a.Task, error) {
	var t a2a.Task
	var currentAgent *string
	err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.Type, &t.Description, &t.Context,
		&t.State, &t.Progress, &t.AssignedAgents, &currentAgent, &t.Priority, &t.CreatedAt,
		&t.UpdatedAt, &t.StartedAt, &t.CompletedAt, &t.ErrorData, &t.Metadata)
	if err != nil {
		return t, err
	}
	t.CurrentAgent = derefString(currentAgent)
	t.AssignedAgents = orEmpty(t.AssignedAgents)
	t.Context = t.Context.OrEmpty()
	t.Progress = t.Progress.OrEmpty()
	t.Metadata = t.Metadata.OrEmpty()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.StartedAt = utcPtr(t.StartedAt)
	t.CompletedAt = utcPtr(t.CompletedAt)
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, id string, req *a2a.CreateTaskRequest) (*a2a.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO a2a_tasks (task_id, session_id, user_id, task_type, task_description,
		                        task_context, assigned_agents, priority, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+taskColumns,
		id, req.SessionID, req.UserID, req.Type, req.Description,
		req.Context.OrEmpty(), orEmpty(req.AssignedAgents), req.Priority, req.Metadata.OrEmpty())

	t, err := scanTask(row)
	if err != nil {
		return nil, storeErr(err, "create task %s", id)
	}
	return &t, nil
}

// UpdateTask writes only the fields carried by u. Column names come from
// the fixed a2a.TaskField set, never from caller input.
func (s *Store) UpdateTask(ctx context.Context, id string, u a2a.TaskUpdate) (*a2a.Task, error) {
	assignments := u.Assignments()
	if len(assignments) == 0 {
		return nil, fmt.Errorf("update task %s: %w: no fields", id, domain.ErrValidation)
	}

	set := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments)+1)
	for i, a := range assignments {
		set = append(set, fmt.Sprintf("%s = $%d", a.Field, i+1))
		args = append(args, columnValue(a))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE a2a_tasks SET %s WHERE task_id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), taskColumns)

	t, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFoundWrap(err, "update task %s", id)
	}
	return &t, nil
}

// columnValue converts an assignment value into its bind parameter.
func columnValue(a a2a.Assignment) any {
	switch v := a.Value.(type) {
	case a2a.TaskState:
		return string(v)
	case string:
		if a.Field == a2a.FieldCurrentAgent {
			return nullIfEmpty(v)
		}
		return v
	default:
		return v
	}
}

func (s *Store) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM a2a_tasks WHERE task_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) ListTasksBySession(ctx context.Context, sessionID string, state *a2a.TaskState) ([]a2a.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM a2a_tasks WHERE session_id = $1`
	args := []any{sessionID}
	if state != nil {
		query += ` AND task_state = $2`
		args = append(args, string(*state))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryTasks(ctx, "list session tasks", query, args...)
}

func (s *Store) ListActiveTasks(ctx context.Context, userID int64) ([]a2a.Task, error) {
	return s.queryTasks(ctx, "list active tasks",
		`SELECT `+taskColumns+` FROM a2a_tasks
		 WHERE user_id = $1 AND task_state IN ('pending', 'processing', 'active')
		 ORDER BY created_at DESC, id DESC`, userID)
}

func (s *Store) ListUserTasks(ctx context.Context, userID int64, limit int) ([]a2a.Task, error) {
	return s.queryTasks(ctx, "list user tasks",
		`SELECT `+taskColumns+` FROM a2a_tasks
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT NULLIF($2, 0)`, userID, limit)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]a2a.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "%s", op)
	}
	defer rows.Close()

	tasks := []a2a.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeErr(err, "scan task")
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "%s", op)
	}
	return tasks, nil
}
