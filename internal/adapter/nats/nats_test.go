package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
)

var errHandler = errors.New("handler failed")

func testConnect(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// delivery is one message seen by a test consumer.
type delivery struct {
	subject   string
	data      []byte
	requestID string
	retry     string
}

// rawConsume reads subject with a plain JetStream consumer, bypassing
// validation and retries, starting from messages published after the call.
func rawConsume(t *testing.T, q *Queue, subject string) <-chan delivery {
	t.Helper()
	ctx := context.Background()
	cons, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create consumer on %s: %v", subject, err)
	}
	out := make(chan delivery, 16)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		out <- delivery{
			subject:   msg.Subject(),
			data:      msg.Data(),
			requestID: msg.Headers().Get(headerRequestID),
			retry:     msg.Headers().Get(headerRetryCount),
		}
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume %s: %v", subject, err)
	}
	t.Cleanup(cc.Stop)
	return out
}

func await(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for message")
		return delivery{}
	}
}

func TestQueue_TaskEventDelivered(t *testing.T) {
	q := testConnect(t)
	subject := "a2a.test.task." + t.Name()

	want := messagequeue.TaskEventPayload{
		TaskID:    "task-1",
		SessionID: "sess-1",
		UserID:    7,
		TaskType:  "research",
		TaskState: "working",
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	data, _ := json.Marshal(want)

	got := make(chan delivery, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, subj string, d []byte) error {
		got <- delivery{subject: subj, data: d, requestID: logger.RequestID(ctx)}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), "req-task-1")
	if err := q.Publish(ctx, subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := await(t, got)
	if d.requestID != "req-task-1" {
		t.Errorf("request id = %q, want req-task-1", d.requestID)
	}
	var p messagequeue.TaskEventPayload
	if err := json.Unmarshal(d.data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.TaskID != want.TaskID || p.TaskState != want.TaskState || !p.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("payload = %+v, want %+v", p, want)
	}
}

func TestQueue_InvalidPayloadDeadLettered(t *testing.T) {
	q := testConnect(t)
	subject := messagequeue.SubjectCleanupCompleted
	dlq := rawConsume(t, q, messagequeue.DLQSubject(subject))

	var called atomic.Bool
	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		called.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{"archived_tasks":"many"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := await(t, dlq)
	if string(d.data) != `{"archived_tasks":"many"}` {
		t.Errorf("dlq data = %s", d.data)
	}
	if called.Load() {
		t.Error("handler saw a payload that failed validation")
	}
}

func TestQueue_FailedHandlerIsRetried(t *testing.T) {
	q := testConnect(t)
	subject := "a2a.test.retry." + t.Name()
	retries := rawConsume(t, q, subject)

	var calls atomic.Int32
	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		if calls.Add(1) == 1 {
			return errHandler
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// The raw consumer sees the original and then the republished copy.
	if d := await(t, retries); d.retry != "" {
		t.Errorf("original carries retry header %q", d.retry)
	}
	if d := await(t, retries); d.retry != "1" {
		t.Errorf("retry header = %q, want 1", d.retry)
	}
}

func TestQueue_RetryExhaustionDeadLetters(t *testing.T) {
	q := testConnect(t)
	subject := "a2a.test.exhausted." + t.Name()
	dlq := rawConsume(t, q, messagequeue.DLQSubject(subject))

	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		return errHandler
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	msg := &nats.Msg{Subject: subject, Data: []byte(`{"exhausted":true}`), Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(context.Background(), msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	d := await(t, dlq)
	if d.retry != "3" {
		t.Errorf("dlq copy retry header = %q, want 3", d.retry)
	}
}

func TestQueue_ThreadBucket(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "agentrelay-test-threads", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	key := "thread.7.conv-1"
	if _, err := kv.Put(ctx, key, []byte(`{"turns":2}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != `{"turns":2}` {
		t.Errorf("value = %s", entry.Value())
	}
	if err := kv.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, key); !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Errorf("Get after delete: %v, want ErrKeyNotFound", err)
	}
	if !q.IsConnected() {
		t.Error("connection dropped")
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{"", 0},
		{"2", 2},
		{"x", 0},
	}
	for _, tt := range tests {
		h := nats.Header{}
		if tt.val != "" {
			h.Set(headerRetryCount, tt.val)
		}
		if got := retryCount(h); got != tt.want {
			t.Errorf("retryCount(%q) = %d, want %d", tt.val, got, tt.want)
		}
	}
}

func TestCopyHeaderIsDeep(t *testing.T) {
	h := nats.Header{}
	h.Set(headerRequestID, "req-1")

	c := copyHeader(h)
	c.Set(headerRequestID, "req-2")
	c.Set(headerRetryCount, "1")

	if h.Get(headerRequestID) != "req-1" || h.Get(headerRetryCount) != "" {
		t.Errorf("original header mutated: %v", h)
	}
}
