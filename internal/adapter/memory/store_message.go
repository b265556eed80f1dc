package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

// --- Messages ---

func (s *Store) CreateMessage(_ context.Context, id string, req *a2a.LogMessageRequest) (*a2a.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[id]; exists {
		return nil, fmt.Errorf("log message %s: %w", id, domain.ErrConflict)
	}
	if req.TaskID != "" {
		if _, ok := s.tasks[req.TaskID]; !ok {
			return nil, fmt.Errorf("log message %s: unknown task %s: %w: %w",
				id, req.TaskID, domain.ErrValidation, domain.ErrPersistence)
		}
	}

	m := a2a.Message{
		ID:              id,
		TaskID:          req.TaskID,
		SessionID:       req.SessionID,
		UserID:          req.UserID,
		SenderType:      req.SenderType,
		SenderAgent:     req.SenderAgent,
		ReceiverType:    req.ReceiverType,
		ReceiverAgent:   req.ReceiverAgent,
		MessageType:     req.MessageType,
		Content:         req.Content,
		StructuredData:  req.StructuredData.OrEmpty().Clone(),
		Attachments:     append([]any{}, req.Attachments...),
		ProtocolVersion: req.ProtocolVersion,
		Classification:  req.Classification.Clone(),
		Status:          a2a.MessagePending,
		Metadata:        req.Metadata.OrEmpty().Clone(),
		CreatedAt:       s.now(),
	}
	s.messages[id] = &messageRow{msg: m, seq: s.nextSeq()}

	out := cloneMessage(&m)
	return &out, nil
}

func (s *Store) ListMessagesByTask(_ context.Context, taskID string, limit int) ([]a2a.Message, error) {
	return s.filterMessages(limit, func(m *a2a.Message) bool { return m.TaskID == taskID }), nil
}

func (s *Store) ListMessagesBySession(_ context.Context, sessionID string, limit int) ([]a2a.Message, error) {
	return s.filterMessages(limit, func(m *a2a.Message) bool { return m.SessionID == sessionID }), nil
}

func (s *Store) UpdateMessageStatus(_ context.Context, id string, status a2a.ProcessingStatus) (*a2a.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("update message status %s: %w", id, domain.ErrNotFound)
	}
	now := s.now()
	r.msg.Status = status
	r.msg.ProcessedAt = &now

	out := cloneMessage(&r.msg)
	return &out, nil
}

func (s *Store) filterMessages(limit int, keep func(*a2a.Message) bool) []a2a.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*messageRow
	for _, r := range s.messages {
		if keep(&r.msg) {
			rows = append(rows, r)
		}
	}
	newestFirst(rows,
		func(r *messageRow) time.Time { return r.msg.CreatedAt },
		func(r *messageRow) int64 { return r.seq })

	n := capLimit(len(rows), limit)
	out := make([]a2a.Message, 0, n)
	for _, r := range rows[:n] {
		out = append(out, cloneMessage(&r.msg))
	}
	return out
}

// --- Agent interactions ---

func (s *Store) CreateInteraction(_ context.Context, id string, req *a2a.LogInteractionRequest) (*a2a.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.interactions[id]; exists {
		return nil, fmt.Errorf("log agent interaction %s: %w", id, domain.ErrConflict)
	}
	if _, ok := s.tasks[req.TaskID]; !ok {
		return nil, fmt.Errorf("log agent interaction %s: unknown task %s: %w: %w",
			id, req.TaskID, domain.ErrValidation, domain.ErrPersistence)
	}
	if req.MessageID != "" {
		if _, ok := s.messages[req.MessageID]; !ok {
			return nil, fmt.Errorf("log agent interaction %s: unknown message %s: %w: %w",
				id, req.MessageID, domain.ErrValidation, domain.ErrPersistence)
		}
	}

	success := true
	if req.Success != nil {
		success = *req.Success
	}
	completed := s.now()
	if req.CompletedAt != nil {
		completed = *req.CompletedAt
	}

	in := a2a.Interaction{
		ID:              id,
		TaskID:          req.TaskID,
		MessageID:       req.MessageID,
		UserID:          req.UserID,
		AgentName:       req.AgentName,
		ActionType:      req.ActionType,
		Input:           req.Input.Clone(),
		Output:          req.Output.Clone(),
		ExecutionTimeMS: req.ExecutionTimeMS,
		TokensUsed:      req.TokensUsed,
		Success:         success,
		ErrorMessage:    req.ErrorMessage,
		Confidence:      req.Confidence,
		Reasoning:       req.Reasoning,
		CompletedAt:     completed,
		Metadata:        req.Metadata.OrEmpty().Clone(),
		CreatedAt:       s.now(),
	}
	s.interactions[id] = &interactionRow{in: cloneInteraction(&in), seq: s.nextSeq()}

	out := cloneInteraction(&in)
	return &out, nil
}

func (s *Store) ListInteractionsByTask(_ context.Context, taskID string) ([]a2a.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*interactionRow
	for _, r := range s.interactions {
		if r.in.TaskID == taskID {
			rows = append(rows, r)
		}
	}
	newestFirst(rows,
		func(r *interactionRow) time.Time { return r.in.CreatedAt },
		func(r *interactionRow) int64 { return r.seq })

	out := make([]a2a.Interaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneInteraction(&r.in))
	}
	return out, nil
}
