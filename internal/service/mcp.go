package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	mcpadapter "github.com/Strob0t/agentrelay/internal/adapter/mcp"
	cfotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/adapter/ws"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain/mcp"
	"github.com/Strob0t/agentrelay/internal/port/broadcast"
)

const (
	healthCheckID      = "health-check"
	healthCheckTimeout = 5 * time.Second
)

// serverHandle is the live state of one spawned tool server. A handle is
// replaced wholesale on restart; callers holding an old handle see it dead.
type serverHandle struct {
	conn   *mcpadapter.Conn
	ready  atomic.Bool
	cancel context.CancelFunc // stops the health check
}

// MCPOrchestrator supervises the stdio tool servers: it spawns them, health
// checks them in the background, routes requests and restarts on demand.
type MCPOrchestrator struct {
	cfg      config.MCP
	defs     map[string]mcp.ServerDef
	order    []string
	launcher func(context.Context) (string, error)
	metrics  *cfotel.Metrics
	hub      broadcast.Broadcaster

	initMu      sync.Mutex // serializes Initialize and Cleanup
	mu          sync.RWMutex
	procs       map[string]*serverHandle
	initialized bool

	restartMu sync.Map // server name -> *sync.Mutex
}

// NewMCPOrchestrator creates an orchestrator for defs, or for the built-in
// servers when none are given. Definitions found in cfg.ServersDir are added
// on top and replace same-named entries. cfg.Servers, when set, selects and
// orders the servers Initialize brings up.
func NewMCPOrchestrator(cfg config.MCP, defs ...mcp.ServerDef) (*MCPOrchestrator, error) {
	if len(defs) == 0 {
		defs = mcp.BuiltinServers()
	}

	o := &MCPOrchestrator{
		cfg:      cfg,
		defs:     make(map[string]mcp.ServerDef, len(defs)),
		launcher: mcpadapter.ResolveLauncher,
		procs:    make(map[string]*serverHandle),
	}

	var order []string
	for i := range defs {
		if err := o.register(defs[i], &order); err != nil {
			return nil, err
		}
	}

	if cfg.ServersDir != "" {
		loaded, err := LoadServerDefs(cfg.ServersDir)
		if err != nil {
			return nil, err
		}
		for i := range loaded {
			if err := o.register(loaded[i], &order); err != nil {
				return nil, err
			}
		}
	}

	if len(cfg.Servers) > 0 {
		order = order[:0]
		for _, name := range cfg.Servers {
			if _, ok := o.defs[name]; !ok {
				return nil, fmt.Errorf("mcp server %q: %w", name, mcp.ErrUnknownServer)
			}
			order = append(order, name)
		}
	}
	o.order = order

	return o, nil
}

func (o *MCPOrchestrator) register(def mcp.ServerDef, order *[]string) error { //nolint:gocritic // hugeParam: value semantics for register
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := o.defs[def.Name]; !exists {
		*order = append(*order, def.Name)
	}
	o.defs[def.Name] = def
	return nil
}

// SetMetrics enables tool call metrics.
func (o *MCPOrchestrator) SetMetrics(m *cfotel.Metrics) { o.metrics = m }

// SetBroadcaster enables readiness change events for dashboard clients.
func (o *MCPOrchestrator) SetBroadcaster(b broadcast.Broadcaster) { o.hub = b }

// Servers returns the managed server definitions in initialization order.
func (o *MCPOrchestrator) Servers() []mcp.ServerDef {
	out := make([]mcp.ServerDef, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.defs[name])
	}
	return out
}

// Initialize spawns every configured server in order. Health checks run in
// the background, so a nil return means spawned, not ready. The first
// failure aborts the sequence and leaves the orchestrator uninitialized;
// servers already spawned stay registered until Cleanup.
func (o *MCPOrchestrator) Initialize(ctx context.Context) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	if o.isInitialized() {
		return nil
	}

	for _, name := range o.order {
		if err := o.startServer(ctx, name); err != nil {
			slog.Error("mcp initialization failed", "server", name, "error", err)
			return fmt.Errorf("initialize mcp: %w", err)
		}
	}

	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()

	slog.Info("mcp orchestrator initialized", "servers", strings.Join(o.order, ","))
	return nil
}

// startServer checks the environment, spawns the process and starts its
// watcher and background health check.
func (o *MCPOrchestrator) startServer(ctx context.Context, name string) error {
	def, ok := o.defs[name]
	if !ok {
		return fmt.Errorf("start %s: %w", name, mcp.ErrUnknownServer)
	}
	if key, missing := def.MissingEnv(); missing {
		return fmt.Errorf("start %s: %w: %s", name, mcp.ErrMissingEnv, key)
	}

	path := def.Command
	if path == "" {
		launcher, err := o.launcher(ctx)
		if err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		path = launcher
	}

	conn, err := mcpadapter.Spawn(name, path, def.Args, def.Environ(), mcpadapter.ConnConfig{
		RequestTimeout: o.cfg.RequestTimeout,
		MaxInFlight:    o.cfg.MaxInFlight,
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	hctx, cancel := context.WithCancel(context.Background())
	h := &serverHandle{conn: conn, cancel: cancel}

	o.mu.Lock()
	o.procs[name] = h
	o.mu.Unlock()

	go o.watch(name, h)
	go o.healthCheck(hctx, name, h)
	return nil
}

// watch marks the server unready once its process exits.
func (o *MCPOrchestrator) watch(name string, h *serverHandle) {
	<-h.conn.Done()
	h.cancel()
	if h.ready.Swap(false) {
		slog.Warn("mcp server exited while ready", "server", name, "error", h.conn.ExitErr())
		o.publishStatus(name, false, "process exited")
	}
}

// healthCheck probes with tools/list until the server answers or the
// attempt budget runs out. A server that never answers stays registered
// but unready.
func (o *MCPOrchestrator) healthCheck(ctx context.Context, name string, h *serverHandle) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.HealthAttempts; attempt++ {
		if !sleepCtx(ctx, o.cfg.HealthInterval) {
			return
		}
		_, err := h.conn.CallWithID(ctx, healthCheckID, "tools/list", map[string]any{}, healthCheckTimeout)
		if err == nil {
			h.ready.Store(true)
			slog.Info("mcp server ready", "server", name, "attempt", attempt, "pid", h.conn.PID())
			o.publishStatus(name, true, "")
			return
		}
		lastErr = err
		if !h.conn.Alive() {
			return
		}
		slog.Debug("mcp health check failed", "server", name, "attempt", attempt, "error", err)
	}
	slog.Warn("mcp server failed health check", "server", name, "attempts", o.cfg.HealthAttempts, "error", lastErr)
	o.publishStatus(name, false, "health check failed")
}

func (o *MCPOrchestrator) isInitialized() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.initialized
}

func (o *MCPOrchestrator) handle(name string) *serverHandle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.procs[name]
}

// awaitReady polls for a ready handle, re-reading the registry on every
// poll so a restart in progress is picked up.
func (o *MCPOrchestrator) awaitReady(ctx context.Context, name string) (*serverHandle, error) {
	for attempt := 1; ; attempt++ {
		if h := o.handle(name); h != nil && h.ready.Load() && h.conn.Alive() {
			return h, nil
		}
		if attempt >= o.cfg.ReadyPollAttempts {
			break
		}
		if !sleepCtx(ctx, o.cfg.ReadyPollInterval) {
			return nil, fmt.Errorf("mcp server %s: %w", name, ctx.Err())
		}
	}
	return nil, fmt.Errorf("mcp server %s after %d polls: %w", name, o.cfg.ReadyPollAttempts, mcp.ErrNotReady)
}

// SendRequest waits for the server to be ready, then sends one JSON-RPC
// request and returns its raw result. A server that was never started
// fails at once with ErrNotInitialized.
func (o *MCPOrchestrator) SendRequest(ctx context.Context, name, method string, params any) (json.RawMessage, error) {
	if _, ok := o.defs[name]; !ok {
		return nil, fmt.Errorf("send %s to %s: %w", method, name, mcp.ErrUnknownServer)
	}
	if !o.isInitialized() && o.handle(name) == nil {
		return nil, fmt.Errorf("send %s to %s: %w", method, name, mcp.ErrNotInitialized)
	}

	ctx, span := cfotel.StartToolCallSpan(ctx, name, method)
	start := time.Now()

	h, err := o.awaitReady(ctx, name)
	var result json.RawMessage
	if err == nil {
		result, err = h.conn.Call(ctx, method, params)
	}

	o.recordCall(ctx, name, method, time.Since(start), err)
	cfotel.EndSpan(span, err)
	return result, err
}

// RestartServer kills the server's process, waits the grace period and
// starts it again. Restarts of the same server are serialized.
func (o *MCPOrchestrator) RestartServer(ctx context.Context, name string) error {
	_, err := o.restart(ctx, name, nil)
	return err
}

// restart replaces the server's process. With a non-nil stale handle it
// only acts if that handle is still the registered one, so callers that
// failed on the same process restart it once between them. It reports
// whether a restart happened.
func (o *MCPOrchestrator) restart(ctx context.Context, name string, stale *serverHandle) (bool, error) {
	if _, ok := o.defs[name]; !ok {
		return false, fmt.Errorf("restart %s: %w", name, mcp.ErrUnknownServer)
	}

	lock, _ := o.restartMu.LoadOrStore(name, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if stale != nil && o.handle(name) != stale {
		slog.Debug("mcp server already restarted", "server", name)
		return false, nil
	}

	slog.Info("restarting mcp server", "server", name)
	if o.metrics != nil {
		o.metrics.ServerRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("mcp.server", name)))
	}

	o.mu.Lock()
	h := o.procs[name]
	delete(o.procs, name)
	o.mu.Unlock()

	if h != nil {
		h.cancel()
		if err := h.conn.Close(); err != nil {
			slog.Warn("mcp server did not stop cleanly", "server", name, "error", err)
		}
	}
	o.publishStatus(name, false, "restarting")

	if !sleepCtx(ctx, o.cfg.RestartGrace) {
		return true, fmt.Errorf("restart %s: %w", name, ctx.Err())
	}
	if err := o.startServer(ctx, name); err != nil {
		return true, fmt.Errorf("restart: %w", err)
	}
	return true, nil
}

// Cleanup kills every process, clears the registry and marks the
// orchestrator uninitialized. Calling it again is a no-op.
func (o *MCPOrchestrator) Cleanup() error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	o.mu.Lock()
	procs := o.procs
	o.procs = make(map[string]*serverHandle)
	o.initialized = false
	o.mu.Unlock()

	var errs []error
	for name, h := range procs {
		h.cancel()
		h.ready.Store(false)
		if err := h.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
	}
	if len(procs) > 0 {
		slog.Info("mcp orchestrator stopped", "servers", len(procs))
	}
	return errors.Join(errs...)
}

// IsReady reports whether the orchestrator is initialized and every
// configured server is ready.
func (o *MCPOrchestrator) IsReady() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.initialized {
		return false
	}
	for _, name := range o.order {
		h := o.procs[name]
		if h == nil || !h.ready.Load() || !h.conn.Alive() {
			return false
		}
	}
	return true
}

// Status returns a snapshot of the registered servers. Servers that were
// never spawned, or were removed by Cleanup, are absent.
func (o *MCPOrchestrator) Status() mcp.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := mcp.Status{
		Initialized: o.initialized,
		Servers:     make(map[string]mcp.ServerStatus, len(o.procs)),
	}
	for name, h := range o.procs {
		alive := h.conn.Alive()
		st.Servers[name] = mcp.ServerStatus{
			Ready:            alive && h.ready.Load(),
			HasProcess:       alive,
			QueuedMessages:   h.conn.Queued(),
			PendingResponses: h.conn.Pending(),
		}
	}
	return st
}

func (o *MCPOrchestrator) recordCall(ctx context.Context, name, method string, elapsed time.Duration, err error) {
	if o.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mcp.server", name),
		attribute.String("mcp.method", method),
	)
	o.metrics.ToolCalls.Add(ctx, 1, attrs)
	o.metrics.ToolCallDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		o.metrics.ToolCallFailures.Add(ctx, 1, attrs)
	}
}

func (o *MCPOrchestrator) publishStatus(name string, ready bool, reason string) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(context.Background(), ws.EventMCPStatus, ws.MCPStatusEvent{
		Server: name,
		Ready:  ready,
		Reason: reason,
	})
}

// sleepCtx waits d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// LoadServerDefs reads all .yaml/.yml files from a directory, one server
// definition per file, sorted by file name. A missing directory returns
// nil (not an error).
func LoadServerDefs(dir string) ([]mcp.ServerDef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mcp servers directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var defs []mcp.ServerDef
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, readErr := os.ReadFile(path) //nolint:gosec // G304: path built from trusted dir
		if readErr != nil {
			return nil, fmt.Errorf("read mcp server file %s: %w", path, readErr)
		}

		var def mcp.ServerDef
		if unmarshalErr := yaml.Unmarshal(data, &def); unmarshalErr != nil {
			return nil, fmt.Errorf("parse mcp server file %s: %w", path, unmarshalErr)
		}
		if valErr := def.Validate(); valErr != nil {
			return nil, fmt.Errorf("mcp server file %s: %w", path, valErr)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
