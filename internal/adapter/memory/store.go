// Package memory implements database.Store in process memory. It backs
// storage.driver=memory for local runs and the service tests; semantics
// mirror the postgres adapter, including transactional cleanup.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/port/database"
)

type taskRow struct {
	task a2a.Task
	seq  int64
}

type messageRow struct {
	msg a2a.Message
	seq int64
}

type interactionRow struct {
	in  a2a.Interaction
	seq int64
}

type sessionRow struct {
	s   a2a.SessionState
	seq int64
}

// Store is a map-backed database.Store guarded by one RWMutex.
type Store struct {
	mu           sync.RWMutex
	tasks        map[string]*taskRow
	messages     map[string]*messageRow
	interactions map[string]*interactionRow
	sessions     map[string]*sessionRow
	seq          int64
	now          func() time.Time
}

var _ database.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tasks:        make(map[string]*taskRow),
		messages:     make(map[string]*messageRow),
		interactions: make(map[string]*interactionRow),
		sessions:     make(map[string]*sessionRow),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Tests use it to control expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// nextSeq must be called with s.mu held.
func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// InTx runs fn with exclusive access to the store. On error every map is
// restored from the snapshot taken before fn ran. fn must only use the Tx
// it is given; calling other Store methods from fn deadlocks.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w: %w", domain.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapTasks := make(map[string]*taskRow, len(s.tasks))
	for id, r := range s.tasks {
		snapTasks[id] = &taskRow{task: cloneTask(&r.task), seq: r.seq}
	}
	snapSessions := make(map[string]*sessionRow, len(s.sessions))
	for id, r := range s.sessions {
		snapSessions[id] = &sessionRow{s: cloneSession(&r.s), seq: r.seq}
	}

	if err := fn(&tx{s: s}); err != nil {
		s.tasks = snapTasks
		s.sessions = snapSessions
		return err
	}
	return nil
}

// tx operates on the already locked store.
type tx struct {
	s *Store
}

func (t *tx) ExpireSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, r := range t.s.sessions {
		if r.s.IsActive && r.s.ExpiresAt.Before(now) {
			r.s.IsActive = false
			r.s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (t *tx) ArchiveTasks(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	now := t.s.now()
	for _, r := range t.s.tasks {
		task := &r.task
		if !task.State.IsTerminal() || task.CompletedAt == nil || !task.CompletedAt.Before(cutoff) {
			continue
		}
		if task.Metadata.Archived() {
			continue
		}
		task.Metadata = task.Metadata.Merge(a2a.Payload{a2a.KeyArchived: true})
		task.UpdatedAt = now
		n++
	}
	return n, nil
}

// --- clone helpers ---

func cloneTask(t *a2a.Task) a2a.Task {
	c := *t
	c.Context = t.Context.Clone()
	c.Progress = t.Progress.Clone()
	c.ErrorData = t.ErrorData.Clone()
	c.Metadata = t.Metadata.Clone()
	c.AssignedAgents = append([]string{}, t.AssignedAgents...)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return c
}

func cloneMessage(m *a2a.Message) a2a.Message {
	c := *m
	c.StructuredData = m.StructuredData.Clone()
	c.Classification = m.Classification.Clone()
	c.Metadata = m.Metadata.Clone()
	c.Attachments = append([]any{}, m.Attachments...)
	c.ProcessedAt = cloneTime(m.ProcessedAt)
	return c
}

func cloneInteraction(in *a2a.Interaction) a2a.Interaction {
	c := *in
	c.Input = in.Input.Clone()
	c.Output = in.Output.Clone()
	c.Metadata = in.Metadata.Clone()
	if in.ExecutionTimeMS != nil {
		v := *in.ExecutionTimeMS
		c.ExecutionTimeMS = &v
	}
	if in.Confidence != nil {
		v := *in.Confidence
		c.Confidence = &v
	}
	return c
}

func cloneSession(ss *a2a.SessionState) a2a.SessionState {
	c := *ss
	c.ActiveTasks = append([]string{}, ss.ActiveTasks...)
	c.Context = ss.Context.Clone()
	c.OrchestratorState = ss.OrchestratorState.Clone()
	c.Metadata = ss.Metadata.Clone()
	if ss.ConversationID != nil {
		v := *ss.ConversationID
		c.ConversationID = &v
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// newestFirst orders by created time descending, breaking ties by
// insertion order so results are deterministic.
func newestFirst[T any](rows []T, created func(T) time.Time, seq func(T) int64) {
	sort.SliceStable(rows, func(i, j int) bool {
		ci, cj := created(rows[i]), created(rows[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return seq(rows[i]) > seq(rows[j])
	})
}

func capLimit(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
