package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/adapter/ws"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/port/broadcast"
	"github.com/Strob0t/agentrelay/internal/port/cache"
	"github.com/Strob0t/agentrelay/internal/port/database"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
	"github.com/Strob0t/agentrelay/internal/resilience"
)

// A2AService is the persistence facade of the agent-to-agent layer. It
// validates requests, assigns ids, delegates to the store and announces
// writes on the event bus and the live feed. Event delivery is best
// effort: a failed publish never fails the write.
type A2AService struct {
	store   database.Store
	queue   messagequeue.Queue
	cfg     config.A2A
	breaker *resilience.Breaker
	hub     broadcast.Broadcaster
	cache   cache.Cache
	metrics *cfotel.Metrics

	now   func() time.Time
	newID func() string
}

// NewA2AService creates an A2AService. A nil queue disables publishing.
func NewA2AService(store database.Store, queue messagequeue.Queue, cfg config.A2A) *A2AService {
	if queue == nil {
		queue = messagequeue.Nop{}
	}
	return &A2AService{
		store: store,
		queue: queue,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// SetBreaker guards event publishing with a circuit breaker.
func (s *A2AService) SetBreaker(b *resilience.Breaker) { s.breaker = b }

// SetBroadcaster enables live feed events.
func (s *A2AService) SetBroadcaster(b broadcast.Broadcaster) { s.hub = b }

// SetCache sets the thread cache backend.
func (s *A2AService) SetCache(c cache.Cache) { s.cache = c }

// SetMetrics enables store metrics.
func (s *A2AService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// --- Tasks ---

// CreateTask validates req, assigns a new id and stores the task in the
// pending state.
func (s *A2AService) CreateTask(ctx context.Context, req a2a.CreateTaskRequest) (*a2a.Task, error) { //nolint:gocritic // hugeParam: request copied so defaults do not leak to the caller
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	id := s.newID()
	ctx, done := s.track(ctx, "create_task", id)
	t, err := s.store.CreateTask(ctx, id, &req)
	done(err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.task_type", t.Type)))
	}
	slog.InfoContext(ctx, "a2a task created", "task_id", t.ID, "session_id", t.SessionID, "task_type", t.Type)
	s.announceTask(ctx, messagequeue.SubjectTaskCreated, t)
	return t, nil
}

// UpdateTask applies a partial update. Empty updates are rejected without
// touching the store.
func (s *A2AService) UpdateTask(ctx context.Context, id string, u a2a.TaskUpdate) (*a2a.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("update task: %w: task_id is required", domain.ErrValidation)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	ctx, done := s.track(ctx, "update_task", id)
	t, err := s.store.UpdateTask(ctx, id, u)
	done(err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TaskUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.task_state", string(t.State))))
	}
	slog.DebugContext(ctx, "a2a task updated", "task_id", id, "task_state", t.State)
	s.announceTask(ctx, messagequeue.SubjectTaskUpdated, t)
	return t, nil
}

// GetTask returns the task, or nil when it does not exist.
func (s *A2AService) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	ctx, done := s.track(ctx, "get_task", id)
	t, err := s.store.GetTask(ctx, id)
	done(err)
	return t, err
}

// GetTasksBySession lists a session's tasks newest first, optionally only
// those in state.
func (s *A2AService) GetTasksBySession(ctx context.Context, sessionID string, state *a2a.TaskState) ([]a2a.Task, error) {
	if state != nil && !state.Valid() {
		return nil, fmt.Errorf("list session tasks: %w: invalid task_state %q", domain.ErrValidation, *state)
	}
	ctx, done := s.track(ctx, "list_session_tasks", sessionID)
	tasks, err := s.store.ListTasksBySession(ctx, sessionID, state)
	done(err)
	return tasks, err
}

// GetActiveTasks lists a user's pending, processing and active tasks.
func (s *A2AService) GetActiveTasks(ctx context.Context, userID int64) ([]a2a.Task, error) {
	ctx, done := s.track(ctx, "list_active_tasks", fmt.Sprint(userID))
	tasks, err := s.store.ListActiveTasks(ctx, userID)
	done(err)
	return tasks, err
}

// GetUserTasks lists a user's most recent tasks in any state.
func (s *A2AService) GetUserTasks(ctx context.Context, userID int64, limit int) ([]a2a.Task, error) {
	if limit <= 0 {
		limit = s.cfg.UserTaskLimit
	}
	ctx, done := s.track(ctx, "list_user_tasks", fmt.Sprint(userID))
	tasks, err := s.store.ListUserTasks(ctx, userID, limit)
	done(err)
	return tasks, err
}

// --- Messages ---

// LogMessage appends a protocol message.
func (s *A2AService) LogMessage(ctx context.Context, req a2a.LogMessageRequest) (*a2a.Message, error) { //nolint:gocritic // hugeParam: request copied so defaults do not leak to the caller
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("log message: %w", err)
	}

	id := s.newID()
	ctx, done := s.track(ctx, "log_message", id)
	msg, err := s.store.CreateMessage(ctx, id, &req)
	done(err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MessagesLogged.Add(ctx, 1, metric.WithAttributes(attribute.String("a2a.message_type", msg.MessageType)))
	}
	payload := messagequeue.MessageLoggedPayload{
		MessageID:    msg.ID,
		TaskID:       msg.TaskID,
		SessionID:    msg.SessionID,
		SenderType:   msg.SenderType,
		ReceiverType: msg.ReceiverType,
		MessageType:  msg.MessageType,
		CreatedAt:    msg.CreatedAt,
	}
	s.publish(ctx, messagequeue.SubjectMessageLogged, payload)
	s.broadcast(ctx, ws.EventMessage, payload)
	return msg, nil
}

// GetMessagesByTask lists a task's messages newest first.
func (s *A2AService) GetMessagesByTask(ctx context.Context, taskID string, limit int) ([]a2a.Message, error) {
	ctx, done := s.track(ctx, "list_task_messages", taskID)
	msgs, err := s.store.ListMessagesByTask(ctx, taskID, s.messageLimit(limit))
	done(err)
	return msgs, err
}

// GetMessagesBySession lists a session's messages newest first.
func (s *A2AService) GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]a2a.Message, error) {
	ctx, done := s.track(ctx, "list_session_messages", sessionID)
	msgs, err := s.store.ListMessagesBySession(ctx, sessionID, s.messageLimit(limit))
	done(err)
	return msgs, err
}

// UpdateMessageStatus sets a message's processing status and stamps
// processed_at.
func (s *A2AService) UpdateMessageStatus(ctx context.Context, id string, status a2a.ProcessingStatus) (*a2a.Message, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update message status %s: %w: invalid status %q", id, domain.ErrValidation, status)
	}
	ctx, done := s.track(ctx, "update_message_status", id)
	msg, err := s.store.UpdateMessageStatus(ctx, id, status)
	done(err)
	return msg, err
}

func (s *A2AService) messageLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.MessageLimit
	}
	return limit
}

// --- Interactions ---

// LogAgentInteraction records one agent action.
func (s *A2AService) LogAgentInteraction(ctx context.Context, req a2a.LogInteractionRequest) (*a2a.Interaction, error) { //nolint:gocritic // hugeParam: request copied so defaults do not leak to the caller
	if err := req.Validate(s.now()); err != nil {
		return nil, fmt.Errorf("log interaction: %w", err)
	}

	id := s.newID()
	ctx, done := s.track(ctx, "log_interaction", id)
	in, err := s.store.CreateInteraction(ctx, id, &req)
	done(err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Interactions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("a2a.agent", in.AgentName),
			attribute.Bool("a2a.success", in.Success)))
	}
	s.publish(ctx, messagequeue.SubjectInteractionLogged, messagequeue.InteractionLoggedPayload{
		InteractionID:   in.ID,
		TaskID:          in.TaskID,
		AgentName:       in.AgentName,
		ActionType:      in.ActionType,
		Success:         in.Success,
		ExecutionTimeMS: in.ExecutionTimeMS,
	})
	return in, nil
}

// GetInteractionsByTask lists a task's interactions newest first.
func (s *A2AService) GetInteractionsByTask(ctx context.Context, taskID string) ([]a2a.Interaction, error) {
	ctx, done := s.track(ctx, "list_task_interactions", taskID)
	out, err := s.store.ListInteractionsByTask(ctx, taskID)
	done(err)
	return out, err
}

// --- Stats ---

// GetStats returns the global aggregate snapshot.
func (s *A2AService) GetStats(ctx context.Context) (*a2a.Stats, error) {
	ctx, done := s.track(ctx, "stats", "")
	st, err := s.store.Stats(ctx)
	done(err)
	return st, err
}

// GetInteractionStats summarizes a user's interactions over timeframe.
func (s *A2AService) GetInteractionStats(ctx context.Context, userID int64, timeframe a2a.Timeframe) (*a2a.InteractionStats, error) {
	timeframe = a2a.ParseTimeframe(string(timeframe))
	ctx, done := s.track(ctx, "interaction_stats", fmt.Sprint(userID))
	st, err := s.store.InteractionStats(ctx, userID, s.now().Add(-timeframe.Window()))
	done(err)
	if err != nil {
		return nil, err
	}
	st.UserID = userID
	st.Timeframe = timeframe
	return st, nil
}

// GetPerformanceMetrics summarizes task throughput over the last daysBack
// days (7 when daysBack <= 0).
func (s *A2AService) GetPerformanceMetrics(ctx context.Context, daysBack int) (*a2a.PerformanceMetrics, error) {
	if daysBack <= 0 {
		daysBack = 7
	}
	ctx, done := s.track(ctx, "performance_metrics", "")
	m, err := s.store.PerformanceMetrics(ctx, s.now().AddDate(0, 0, -daysBack))
	done(err)
	if err != nil {
		return nil, err
	}
	m.DaysBack = daysBack
	m.ComputeSuccessRate()
	return m, nil
}

// --- Events and instrumentation ---

// track opens a span for one store call. The returned func ends it and
// records latency; failures other than not-found are logged and counted.
func (s *A2AService) track(ctx context.Context, op, id string) (context.Context, func(error)) {
	ctx, span := cfotel.StartStoreSpan(ctx, op, id)
	start := time.Now()
	return ctx, func(err error) {
		if s.metrics != nil {
			attrs := metric.WithAttributes(attribute.String("a2a.op", op))
			s.metrics.StoreCallDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				s.metrics.StoreErrors.Add(ctx, 1, attrs)
			}
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.ErrorContext(ctx, "a2a store operation failed", "op", op, "id", id, "error", err)
		}
		cfotel.EndSpan(span, err)
	}
}

func (s *A2AService) announceTask(ctx context.Context, subject string, t *a2a.Task) {
	s.publish(ctx, subject, messagequeue.TaskEventPayload{
		TaskID:       t.ID,
		SessionID:    t.SessionID,
		UserID:       t.UserID,
		TaskType:     t.Type,
		TaskState:    string(t.State),
		CurrentAgent: t.CurrentAgent,
		UpdatedAt:    t.UpdatedAt,
	})
	s.broadcast(ctx, ws.EventTaskStatus, ws.TaskStatusEvent{
		TaskID:       t.ID,
		SessionID:    t.SessionID,
		State:        string(t.State),
		CurrentAgent: t.CurrentAgent,
	})
}

// publish sends payload through the breaker. Failures are logged only;
// the write already happened.
func (s *A2AService) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal a2a event", "subject", subject, "error", err)
		return
	}

	send := func() error { return s.queue.Publish(ctx, subject, data) }
	if s.breaker != nil {
		err = s.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to publish a2a event", "subject", subject, "error", err)
	}
}

func (s *A2AService) broadcast(ctx context.Context, eventType string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, eventType, payload)
}
