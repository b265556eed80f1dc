package postgres

import (
	"context"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

const messageColumns = `message_id, task_id, session_id, user_id, sender_type, sender_agent,
	receiver_type, receiver_agent, message_type, content, structured_data, attachments,
	protocol_version, classification_data, processing_status, processed_at, metadata, created_at`

func scanMessage(row scannable) (a2a.Message, error) {
	var m a2a.Message
	var taskID, senderAgent, receiverType, receiverAgent *string
	var userID *int64
	err := row.Scan(&m.ID, &taskID, &m.SessionID, &userID, &m.SenderType, &senderAgent,
		&receiverType, &receiverAgent, &m.MessageType, &m.Content, &m.StructuredData, &m.Attachments,
		&m.ProtocolVersion, &m.Classification, &m.Status, &m.ProcessedAt, &m.Metadata, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	m.TaskID = derefString(taskID)
	m.SenderAgent = derefString(senderAgent)
	m.ReceiverType = derefString(receiverType)
	m.ReceiverAgent = derefString(receiverAgent)
	m.UserID = derefInt64(userID)
	m.StructuredData = m.StructuredData.OrEmpty()
	m.Attachments = orEmpty(m.Attachments)
	m.Metadata = m.Metadata.OrEmpty()
	m.ProcessedAt = utcPtr(m.ProcessedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *Store) CreateMessage(ctx context.Context, id string, req *a2a.LogMessageRequest) (*a2a.Message, error) {
	var classification any
	if req.Classification != nil {
		classification = req.Classification
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO a2a_messages (message_id, task_id, session_id, user_id, sender_type, sender_agent,
		                           receiver_type, receiver_agent, message_type, content, structured_data,
		                           attachments, protocol_version, classification_data, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING `+messageColumns,
		id, nullIfEmpty(req.TaskID), req.SessionID, nullIfZero(req.UserID), req.SenderType,
		nullIfEmpty(req.SenderAgent), nullIfEmpty(req.ReceiverType), nullIfEmpty(req.ReceiverAgent),
		req.MessageType, req.Content, req.StructuredData.OrEmpty(), orEmpty(req.Attachments),
		req.ProtocolVersion, classification, req.Metadata.OrEmpty())

	m, err := scanMessage(row)
	if err != nil {
		return nil, storeErr(err, "log message %s", id)
	}
	return &m, nil
}

func (s *Store) ListMessagesByTask(ctx context.Context, taskID string, limit int) ([]a2a.Message, error) {
	return s.queryMessages(ctx, "list task messages",
		`SELECT `+messageColumns+` FROM a2a_messages
		 WHERE task_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT NULLIF($2, 0)`, taskID, limit)
}

func (s *Store) ListMessagesBySession(ctx context.Context, sessionID string, limit int) ([]a2a.Message, error) {
	return s.queryMessages(ctx, "list session messages",
		`SELECT `+messageColumns+` FROM a2a_messages
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT NULLIF($2, 0)`, sessionID, limit)
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status a2a.ProcessingStatus) (*a2a.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`UPDATE a2a_messages
		 SET processing_status = $1, processed_at = NOW()
		 WHERE message_id = $2
		 RETURNING `+messageColumns, string(status), id))
	if err != nil {
		return nil, notFoundWrap(err, "update message status %s", id)
	}
	return &m, nil
}

func (s *Store) queryMessages(ctx context.Context, op, query string, args ...any) ([]a2a.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err, "%s", op)
	}
	defer rows.Close()

	msgs := []a2a.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, storeErr(err, "scan message")
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "%s", op)
	}
	return msgs, nil
}
