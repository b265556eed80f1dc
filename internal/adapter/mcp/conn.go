package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	mcpdomain "github.com/Strob0t/agentrelay/internal/domain/mcp"
)

// exitDrainTimeout bounds how long output is still read after the child
// exits. Descendants that escaped the process group and keep stdout open
// are cut off after it.
const exitDrainTimeout = 2 * time.Second

// ConnConfig tunes a single tool-server connection.
type ConnConfig struct {
	RequestTimeout time.Duration
	MaxInFlight    int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 64
	}
	return c
}

// Conn manages one tool-server child process and multiplexes JSON-RPC
// requests over its stdin/stdout. Responses are routed by request id.
type Conn struct {
	name   string
	cmd    *exec.Cmd
	stdout *os.File
	codec  *lineCodec
	cfg    ConnConfig

	nextID   atomic.Uint64
	inflight *semaphore.Weighted
	queued   atomic.Int64

	pending map[string]chan *jsonrpcMessage
	pendMu  sync.Mutex

	readDone  chan struct{} // closed when the read loop returns
	done      chan struct{} // closed when the process has exited
	exitErr   error
	closeOnce sync.Once
}

// Spawn starts the process and its read loop. The process is not tied to
// any request context; it lives until Close or until it exits on its own.
func Spawn(name, path string, args, env []string, cfg ConnConfig) (*Conn, error) {
	cmd := exec.Command(path, args...) //nolint:gosec // command from trusted server definitions
	cmd.Env = env
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	// stdout is a plain pipe owned by the Conn, so reaping the child does
	// not close it under the read loop.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	err = cmd.Start()
	_ = stdoutW.Close()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("start process %s: %w", path, err)
	}

	cfg = cfg.withDefaults()
	c := &Conn{
		name:     name,
		cmd:      cmd,
		stdout:   stdout,
		codec:    newLineCodec(stdin, stdout),
		cfg:      cfg,
		inflight: semaphore.NewWeighted(cfg.MaxInFlight),
		pending:  make(map[string]chan *jsonrpcMessage),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.readLoop(stderr)
	go c.reap()

	slog.Info("mcp server spawned", "server", name, "pid", cmd.Process.Pid)
	return c, nil
}

// Name returns the logical server name.
func (c *Conn) Name() string { return c.name }

// PID returns the child's process id.
func (c *Conn) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Done is closed once the child process has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Alive reports whether the process is still running.
func (c *Conn) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the process wait error after Done is closed.
func (c *Conn) ExitErr() error {
	<-c.done
	return c.exitErr
}

// Pending returns the number of requests awaiting a response.
func (c *Conn) Pending() int {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	return len(c.pending)
}

// Queued returns the number of requests registered but not yet written.
func (c *Conn) Queued() int {
	return int(c.queued.Load())
}

// Call sends a request with the next monotonic id and waits for its
// response, the configured timeout, ctx, or process exit.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	return c.roundTrip(ctx, strconv.FormatUint(id, 10), id, method, params, c.cfg.RequestTimeout)
}

// CallWithID sends a request under a fixed string id. Used by health checks
// so stray late replies are recognizable.
func (c *Conn) CallWithID(ctx context.Context, id, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	return c.roundTrip(ctx, id, id, method, params, timeout)
}

func (c *Conn) roundTrip(ctx context.Context, key string, wireID any, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !c.Alive() {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, mcpdomain.ErrProcessExited)
	}
	if !c.inflight.TryAcquire(1) {
		return nil, fmt.Errorf("%s %s: %w (limit %d)", c.name, method, mcpdomain.ErrBackpressure, c.cfg.MaxInFlight)
	}
	defer c.inflight.Release(1)

	ch := make(chan *jsonrpcMessage, 1)
	c.pendMu.Lock()
	c.pending[key] = ch
	c.pendMu.Unlock()

	defer func() {
		c.pendMu.Lock()
		if c.pending[key] == ch {
			delete(c.pending, key)
		}
		c.pendMu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	c.queued.Add(1)
	err := c.codec.send(wireID, method, params)
	c.queued.Add(-1)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, fmt.Errorf("%s %s: %w", c.name, method, msg.Error)
		}
		return msg.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s %s: %w after %s", c.name, method, mcpdomain.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s %s: %w", c.name, method, ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("%s %s: %w", c.name, method, mcpdomain.ErrProcessExited)
	}
}

// Close closes stdin, kills the process group and waits briefly for the
// exit to be observed. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.codec.close()
		c.kill()
	})
	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mcp server %s did not exit after kill", c.name)
	}
}

func (c *Conn) kill() {
	if c.cmd.Process != nil {
		_ = killProcessGroup(c.cmd.Process)
	}
}

// readLoop reads response lines until stdout closes or fails.
func (c *Conn) readLoop(stderr io.Reader) {
	defer close(c.readDone)
	go c.drainStderr(stderr)

	for {
		line, err := c.codec.next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Warn("mcp read failed, killing server", "server", c.name, "error", err)
				c.kill()
			}
			return
		}
		c.dispatch(line)
	}
}

// reap waits for the child, lets the read loop drain what was already
// written, then marks the connection done. It does not depend on stdout
// reaching EOF, which a surviving grandchild could hold open.
func (c *Conn) reap() {
	err := c.cmd.Wait()

	select {
	case <-c.readDone:
	case <-time.After(exitDrainTimeout):
		slog.Warn("mcp server output still open after exit", "server", c.name)
		_ = c.stdout.Close()
		<-c.readDone
	}
	_ = c.stdout.Close()

	c.exitErr = err
	close(c.done)
	slog.Info("mcp server exited", "server", c.name, "error", err)
}

// dispatch routes one line to its waiting caller. Malformed lines and
// responses for unknown ids are logged and dropped.
func (c *Conn) dispatch(line []byte) {
	var msg jsonrpcMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		slog.Warn("mcp malformed line skipped", "server", c.name, "error", err, "line", truncate(line, 200))
		return
	}
	if msg.Method != "" {
		slog.Debug("mcp server message ignored", "server", c.name, "method", msg.Method)
		return
	}
	key, ok := idKey(msg.ID)
	if !ok {
		slog.Debug("mcp response without id dropped", "server", c.name)
		return
	}

	c.pendMu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendMu.Unlock()

	if !ok {
		slog.Debug("mcp response for unknown id dropped", "server", c.name, "id", key)
		return
	}
	ch <- &msg
}

func (c *Conn) drainStderr(r io.Reader) {
	codec := newLineCodec(nopWriteCloser{}, r)
	for {
		line, err := codec.next()
		if err != nil {
			return
		}
		slog.Debug("mcp server stderr", "server", c.name, "line", truncate(line, 500))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }
