package resilience

import (
	"errors"
	"testing"
	"time"
)

var errPublish = errors.New("nats: no responders")

// step is one call through the breaker. advance moves the fake clock
// before the call.
type step struct {
	advance   time.Duration
	fail      bool
	wantErr   error
	wantState string
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name  string
		max   int
		steps []step
	}{
		{
			name: "stays closed on success",
			max:  3,
			steps: []step{
				{wantState: "closed"},
				{wantState: "closed"},
			},
		},
		{
			name: "opens after consecutive failures",
			max:  3,
			steps: []step{
				{fail: true, wantErr: errPublish, wantState: "closed"},
				{fail: true, wantErr: errPublish, wantState: "closed"},
				{fail: true, wantErr: errPublish, wantState: "open"},
				{wantErr: ErrCircuitOpen, wantState: "open"},
			},
		},
		{
			name: "success resets the failure count",
			max:  3,
			steps: []step{
				{fail: true, wantErr: errPublish},
				{fail: true, wantErr: errPublish},
				{wantState: "closed"},
				{fail: true, wantErr: errPublish},
				{fail: true, wantErr: errPublish, wantState: "closed"},
				{wantState: "closed"},
			},
		},
		{
			name: "trial success after timeout closes",
			max:  2,
			steps: []step{
				{fail: true, wantErr: errPublish},
				{fail: true, wantErr: errPublish, wantState: "open"},
				{advance: 500 * time.Millisecond, wantErr: ErrCircuitOpen, wantState: "open"},
				{advance: time.Second, wantState: "closed"},
			},
		},
		{
			name: "trial failure reopens",
			max:  2,
			steps: []step{
				{fail: true, wantErr: errPublish},
				{fail: true, wantErr: errPublish},
				{advance: 2 * time.Second, fail: true, wantErr: errPublish, wantState: "open"},
				{wantErr: ErrCircuitOpen, wantState: "open"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			b := NewBreaker("nats", tt.max, time.Second)
			b.now = func() time.Time { return now }

			for i, st := range tt.steps {
				now = now.Add(st.advance)
				called := false
				err := b.Execute(func() error {
					called = true
					if st.fail {
						return errPublish
					}
					return nil
				})
				if !errors.Is(err, st.wantErr) {
					t.Fatalf("step %d: err = %v, want %v", i, err, st.wantErr)
				}
				if errors.Is(err, ErrCircuitOpen) == called {
					t.Fatalf("step %d: called = %v with err %v", i, called, err)
				}
				if st.wantState != "" && b.State() != st.wantState {
					t.Fatalf("step %d: state = %s, want %s", i, b.State(), st.wantState)
				}
			}
		})
	}
}

func TestHalfOpenAllowsSingleTrial(t *testing.T) {
	now := time.Now()
	b := NewBreaker("nats", 1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errPublish })
	now = now.Add(2 * time.Second)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(inTrial)
			<-release
			return nil
		})
	}()
	<-inTrial

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen during trial, got %v", err)
	}
	if got := b.State(); got != "half_open" {
		t.Fatalf("expected half_open during trial, got %s", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed after trial success, got %s", got)
	}
	if got := b.Rejected(); got != 1 {
		t.Fatalf("expected 1 rejected call, got %d", got)
	}
}
