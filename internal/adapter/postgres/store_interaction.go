package postgres

import (
	"context"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

const interactionColumns = `interaction_id, task_id, message_id, user_id, agent_name, action_type,
	input_data, output_data, execution_time_ms, tokens_used, success, error_message,
	confidence_score, reasoning, completed_at, metadata, created_at`

func scanInteraction(row scannable) (a2a.Interaction, error) {
	var in a2a.Interaction
	var messageID, errorMessage, reasoning *string
	var userID *int64
	err := row.Scan(&in.ID, &in.TaskID, &messageID, &userID, &in.AgentName, &in.ActionType,
		&in.Input, &in.Output, &in.ExecutionTimeMS, &in.TokensUsed, &in.Success, &errorMessage,
		&in.Confidence, &reasoning, &in.CompletedAt, &in.Metadata, &in.CreatedAt)
	if err != nil {
		return in, err
	}
	in.MessageID = derefString(messageID)
	in.UserID = derefInt64(userID)
	in.ErrorMessage = derefString(errorMessage)
	in.Reasoning = derefString(reasoning)
	in.Metadata = in.Metadata.OrEmpty()
	in.CompletedAt = in.CompletedAt.UTC()
	in.CreatedAt = in.CreatedAt.UTC()
	return in, nil
}

// CreateInteraction expects req to be validated, so Success and
// CompletedAt are always set.
func (s *Store) CreateInteraction(ctx context.Context, id string, req *a2a.LogInteractionRequest) (*a2a.Interaction, error) {
	var input, output any
	if req.Input != nil {
		input = req.Input
	}
	if req.Output != nil {
		output = req.Output
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO a2a_agent_interactions (interaction_id, task_id, message_id, user_id, agent_name,
		                                     action_type, input_data, output_data, execution_time_ms,
		                                     tokens_used, success, error_message, confidence_score,
		                                     reasoning, completed_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, COALESCE($15, NOW()), $16)
		 RETURNING `+interactionColumns,
		id, req.TaskID, nullIfEmpty(req.MessageID), nullIfZero(req.UserID), req.AgentName,
		req.ActionType, input, output, req.ExecutionTimeMS,
		req.TokensUsed, successOrDefault(req.Success), nullIfEmpty(req.ErrorMessage), req.Confidence,
		nullIfEmpty(req.Reasoning), req.CompletedAt, req.Metadata.OrEmpty())

	in, err := scanInteraction(row)
	if err != nil {
		return nil, storeErr(err, "log agent interaction %s", id)
	}
	return &in, nil
}

func successOrDefault(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

func (s *Store) ListInteractionsByTask(ctx context.Context, taskID string) ([]a2a.Interaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+interactionColumns+` FROM a2a_agent_interactions
		 WHERE task_id = $1
		 ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, storeErr(err, "list interactions for task %s", taskID)
	}
	defer rows.Close()

	out := []a2a.Interaction{}
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, storeErr(err, "scan interaction")
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "list interactions for task %s", taskID)
	}
	return out, nil
}
