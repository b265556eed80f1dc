package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/agentrelay/internal/adapter/mcp/mcptest"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/mcp"
)

// TestHelperProcess is not a real test. The orchestrator relaunches the
// test binary with it selected to get a scripted tool server.
func TestHelperProcess(t *testing.T) {
	mcptest.Run()
}

func testMCPConfig() config.MCP {
	return config.MCP{
		RequestTimeout:    3 * time.Second,
		ReadyPollAttempts: 100,
		ReadyPollInterval: 20 * time.Millisecond,
		HealthAttempts:    100,
		HealthInterval:    20 * time.Millisecond,
		RestartGrace:      10 * time.Millisecond,
		MaxInFlight:       8,
	}
}

func fakeServerDef(name string, opts mcptest.Options) mcp.ServerDef {
	return mcp.ServerDef{
		Name:    name,
		Command: os.Args[0],
		Args:    mcptest.Args("TestHelperProcess"),
		Env:     mcptest.Env(opts),
	}
}

func newTestOrchestrator(t *testing.T, cfg config.MCP, defs ...mcp.ServerDef) *MCPOrchestrator {
	t.Helper()
	o, err := NewMCPOrchestrator(cfg, defs...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() { _ = o.Cleanup() })
	return o
}

func waitReady(t *testing.T, o *MCPOrchestrator) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !o.IsReady() {
		if time.Now().After(deadline) {
			t.Fatalf("orchestrator not ready: %+v", o.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMCPOrchestrator_InitializeStatusCleanup(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))

	if o.IsReady() {
		t.Fatal("expected not ready before Initialize")
	}
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, o)

	st := o.Status()
	if !st.Initialized {
		t.Error("expected initialized")
	}
	srv := st.Servers[mcp.ServerBraveSearch]
	if !srv.Ready || !srv.HasProcess {
		t.Errorf("expected ready server with process, got %+v", srv)
	}
	if srv.PendingResponses != 0 || srv.QueuedMessages != 0 {
		t.Errorf("expected idle server, got %+v", srv)
	}

	// Initialize is a no-op once done.
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if got := mcptest.Spawns(dir); got != 1 {
		t.Errorf("expected 1 spawn, got %d", got)
	}

	if err := o.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	st = o.Status()
	if st.Initialized {
		t.Error("expected uninitialized after cleanup")
	}
	if len(st.Servers) != 0 {
		t.Errorf("expected empty registry after cleanup, got %+v", st.Servers)
	}
	if o.IsReady() {
		t.Error("expected not ready after cleanup")
	}
	if err := o.Cleanup(); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
}

func TestMCPOrchestrator_MissingEnvNamesKey(t *testing.T) {
	dir := t.TempDir()
	def := fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir})
	def.RequiredEnv = []string{"AGENTRELAY_TEST_UNSET_API_KEY"}
	o := newTestOrchestrator(t, testMCPConfig(), def)

	err := o.Initialize(context.Background())
	if !errors.Is(err, mcp.ErrMissingEnv) {
		t.Fatalf("expected ErrMissingEnv, got %v", err)
	}
	if !strings.Contains(err.Error(), "AGENTRELAY_TEST_UNSET_API_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}
	if got := mcptest.Spawns(dir); got != 0 {
		t.Errorf("expected no spawn, got %d", got)
	}
	if o.Status().Initialized {
		t.Error("expected uninitialized")
	}
}

func TestMCPOrchestrator_RequiredEnvFromDefinition(t *testing.T) {
	def := fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: t.TempDir()})
	def.RequiredEnv = []string{"AGENTRELAY_TEST_DEF_KEY"}
	def.Env["AGENTRELAY_TEST_DEF_KEY"] = "secret"
	o := newTestOrchestrator(t, testMCPConfig(), def)

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func TestMCPOrchestrator_InitializeAbortsOnFirstError(t *testing.T) {
	dir := t.TempDir()
	bad := fakeServerDef("first", mcptest.Options{StateDir: dir})
	bad.RequiredEnv = []string{"AGENTRELAY_TEST_UNSET_API_KEY"}
	good := fakeServerDef("second", mcptest.Options{StateDir: dir})
	o := newTestOrchestrator(t, testMCPConfig(), bad, good)

	if err := o.Initialize(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := o.Status(); len(st.Servers) != 0 {
		t.Errorf("no server may be registered after the first failed, got %+v", st.Servers)
	}
	if got := mcptest.Spawns(dir); got != 0 {
		t.Errorf("expected no spawn, got %d", got)
	}
}

func TestMCPOrchestrator_ConfiguredOrder(t *testing.T) {
	cfg := testMCPConfig()
	cfg.Servers = []string{"b"}
	o := newTestOrchestrator(t, cfg,
		fakeServerDef("a", mcptest.Options{}),
		fakeServerDef("b", mcptest.Options{}))

	servers := o.Servers()
	if len(servers) != 1 || servers[0].Name != "b" {
		t.Fatalf("expected only b, got %+v", servers)
	}

	cfg.Servers = []string{"missing"}
	if _, err := NewMCPOrchestrator(cfg, fakeServerDef("a", mcptest.Options{})); !errors.Is(err, mcp.ErrUnknownServer) {
		t.Fatalf("expected ErrUnknownServer, got %v", err)
	}
}

func TestMCPOrchestrator_UnhealthyStaysUnready(t *testing.T) {
	cfg := testMCPConfig()
	cfg.HealthAttempts = 3
	cfg.ReadyPollAttempts = 3
	o := newTestOrchestrator(t, cfg,
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{Unhealthy: true}))

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "echo", map[string]any{})
	if !errors.Is(err, mcp.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	srv := o.Status().Servers[mcp.ServerBraveSearch]
	if srv.Ready {
		t.Error("unhealthy server must not become ready")
	}
	if !srv.HasProcess {
		t.Error("unhealthy server stays registered")
	}
	if o.IsReady() {
		t.Error("expected orchestrator not ready")
	}
}

func TestMCPOrchestrator_SendRequest(t *testing.T) {
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	res, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "echo", map[string]any{"n": 7})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(res, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["n"] != 7 {
		t.Errorf("expected echo of n=7, got %v", got)
	}

	if _, err := o.SendRequest(context.Background(), "nope", "echo", nil); !errors.Is(err, mcp.ErrUnknownServer) {
		t.Errorf("expected ErrUnknownServer, got %v", err)
	}
}

func TestMCPOrchestrator_TimeoutClearsPending(t *testing.T) {
	cfg := testMCPConfig()
	cfg.RequestTimeout = 200 * time.Millisecond
	o := newTestOrchestrator(t, cfg,
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, o)

	_, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "slow", nil)
	if !errors.Is(err, mcp.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	srv := o.Status().Servers[mcp.ServerBraveSearch]
	if srv.PendingResponses != 0 || srv.QueuedMessages != 0 {
		t.Errorf("expected no pending entries after timeout, got %+v", srv)
	}
	if !srv.Ready {
		t.Error("a timeout does not make the server unready")
	}
}

func TestMCPOrchestrator_ExitMarksUnready(t *testing.T) {
	cfg := testMCPConfig()
	cfg.ReadyPollAttempts = 2
	o := newTestOrchestrator(t, cfg,
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, o)

	_, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "exit", nil)
	if !errors.Is(err, mcp.ErrProcessExited) {
		t.Fatalf("expected ErrProcessExited, got %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for o.Status().Servers[mcp.ServerBraveSearch].HasProcess {
		if time.Now().After(deadline) {
			t.Fatal("process still reported after exit")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if o.Status().Servers[mcp.ServerBraveSearch].Ready {
		t.Error("exited server must not be ready")
	}
	if _, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "echo", nil); !errors.Is(err, mcp.ErrNotReady) {
		t.Errorf("expected ErrNotReady after exit, got %v", err)
	}
}

func TestMCPOrchestrator_RequestWaitsDuringRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := testMCPConfig()
	cfg.RestartGrace = 200 * time.Millisecond
	o := newTestOrchestrator(t, cfg,
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, o)

	restarted := make(chan error, 1)
	go func() { restarted <- o.RestartServer(context.Background(), mcp.ServerBraveSearch) }()

	deadline := time.Now().Add(5 * time.Second)
	for o.Status().Servers[mcp.ServerBraveSearch].HasProcess {
		if time.Now().After(deadline) {
			t.Fatal("restart never stopped the process")
		}
		time.Sleep(5 * time.Millisecond)
	}

	results, err := o.BraveWebSearch(context.Background(), "golang", mcp.SearchOptions{})
	if err != nil {
		t.Fatalf("search during restart: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Title, "golang") {
		t.Errorf("unexpected results: %+v", results)
	}
	if err := <-restarted; err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := mcptest.Spawns(dir); got != 2 {
		t.Errorf("expected 2 spawns, got %d", got)
	}
}

func TestBraveWebSearch_RestartsAndRetriesOnce(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir, FailCalls: 1}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	results, err := o.BraveWebSearch(context.Background(), "pizza", mcp.SearchOptions{Count: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %+v", results)
	}
	if results[0].URL == "" {
		t.Errorf("expected URL in result, got %+v", results[0])
	}
	if got := mcptest.Spawns(dir); got != 2 {
		t.Errorf("expected one restart (2 spawns), got %d", got)
	}
	if got := mcptest.Calls(dir); got != 2 {
		t.Errorf("expected 2 tool calls, got %d", got)
	}
}

func TestBraveWebSearch_SecondFailureReturnsOriginalError(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir, FailCalls: 5}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := o.BraveWebSearch(context.Background(), "pizza", mcp.SearchOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "injected failure 1") {
		t.Errorf("expected the first attempt's error, got %v", err)
	}
	if got := mcptest.Calls(dir); got != 2 {
		t.Errorf("expected exactly 2 tool calls, got %d", got)
	}
	if got := mcptest.Spawns(dir); got != 2 {
		t.Errorf("expected exactly 2 spawns, got %d", got)
	}
}

func TestBraveSearch_Validation(t *testing.T) {
	o := newTestOrchestrator(t, testMCPConfig(), fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{}))

	if _, err := o.BraveWebSearch(context.Background(), "  ", mcp.SearchOptions{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := o.BraveLocalSearch(context.Background(), "", 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestBraveLocalSearch(t *testing.T) {
	o := newTestOrchestrator(t, testMCPConfig(), fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	results, err := o.BraveLocalSearch(context.Background(), "coffee", 0)
	if err != nil {
		t.Fatalf("local search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Local coffee" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestPineconeRecords(t *testing.T) {
	o := newTestOrchestrator(t, testMCPConfig(), fakeServerDef(mcp.ServerPinecone, mcptest.Options{}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	recs, err := o.PineconeSearchRecords(context.Background(), "listings", "ns1", "bakery for sale", mcp.VectorSearchOptions{})
	if err != nil {
		t.Fatalf("search records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %+v", recs)
	}
	if recs[0].ID != "rec-1" || recs[0].Fields["text"] != "bakery for sale" {
		t.Errorf("unexpected record: %+v", recs[0])
	}

	reply, err := o.PineconeUpsertRecords(context.Background(), "listings", "ns1", []mcp.VectorRecord{
		{ID: "a", Fields: map[string]any{"text": "one"}},
		{ID: "b", Fields: map[string]any{"text": "two"}},
	})
	if err != nil {
		t.Fatalf("upsert records: %v", err)
	}
	if reply != `{"upserted":2}` {
		t.Errorf("unexpected upsert reply %q", reply)
	}

	if _, err := o.PineconeUpsertRecords(context.Background(), "listings", "ns1", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for empty upsert, got %v", err)
	}
}

func TestCallTool_ErrorResult(t *testing.T) {
	o := newTestOrchestrator(t, testMCPConfig(), fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := o.callTool(context.Background(), mcp.ServerBraveSearch, "no_such_tool", map[string]any{})
	if !errors.Is(err, mcp.ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown tool no_such_tool") {
		t.Errorf("expected tool text in error, got %v", err)
	}
}

func TestCallToolWithRetry_ToolErrorKeepsServer(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := o.callToolWithRetry(context.Background(), mcp.ServerBraveSearch, "no_such_tool", map[string]any{})
	if !errors.Is(err, mcp.ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed, got %v", err)
	}
	if got := mcptest.Spawns(dir); got != 1 {
		t.Errorf("a tool error must not restart the server, got %d spawns", got)
	}
	if got := mcptest.Calls(dir); got != 1 {
		t.Errorf("a tool error must not be retried, got %d calls", got)
	}
}

func TestBraveWebSearch_BackpressureKeepsInFlightRequests(t *testing.T) {
	dir := t.TempDir()
	cfg := testMCPConfig()
	cfg.MaxInFlight = 1
	cfg.RequestTimeout = 500 * time.Millisecond
	o := newTestOrchestrator(t, cfg,
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, o)

	slow := make(chan error, 1)
	go func() {
		_, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "slow", nil)
		slow <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for o.Status().Servers[mcp.ServerBraveSearch].PendingResponses == 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow request never became pending")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := o.BraveWebSearch(context.Background(), "pizza", mcp.SearchOptions{})
	if !errors.Is(err, mcp.ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
	if err := <-slow; !errors.Is(err, mcp.ErrTimeout) {
		t.Errorf("in-flight request should time out on the same process, got %v", err)
	}
	if got := mcptest.Spawns(dir); got != 1 {
		t.Errorf("backpressure must not restart the server, got %d spawns", got)
	}
}

func TestMCPOrchestrator_StaleRestartIsSkipped(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	waitReady(t, o)

	failed := o.handle(mcp.ServerBraveSearch)
	did, err := o.restart(context.Background(), mcp.ServerBraveSearch, failed)
	if err != nil || !did {
		t.Fatalf("first restart = %v, %v; want restarted", did, err)
	}

	// A second caller that failed on the same process finds it replaced.
	did, err = o.restart(context.Background(), mcp.ServerBraveSearch, failed)
	if err != nil || did {
		t.Fatalf("second restart = %v, %v; want skipped", did, err)
	}
	if got := mcptest.Spawns(dir); got != 2 {
		t.Errorf("expected 2 spawns, got %d", got)
	}
	waitReady(t, o)
	if _, err := o.BraveWebSearch(context.Background(), "pizza", mcp.SearchOptions{}); err != nil {
		t.Fatalf("search on restarted server: %v", err)
	}
}

func TestMCPOrchestrator_SendRequestBeforeInitialize(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))

	start := time.Now()
	_, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "echo", nil)
	if !errors.Is(err, mcp.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("an uninitialized orchestrator should fail without polling")
	}
	if _, err := o.BraveWebSearch(context.Background(), "pizza", mcp.SearchOptions{}); !errors.Is(err, mcp.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from wrapper, got %v", err)
	}
	if got := mcptest.Spawns(dir); got != 0 {
		t.Errorf("nothing may be spawned before Initialize, got %d", got)
	}

	if err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := o.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := o.SendRequest(context.Background(), mcp.ServerBraveSearch, "echo", nil); !errors.Is(err, mcp.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after cleanup, got %v", err)
	}
}

func TestMCPOrchestrator_ConcurrentInitialize(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}),
		fakeServerDef(mcp.ServerPinecone, mcptest.Options{StateDir: dir}))

	const callers = 8
	errs := make(chan error, callers)
	for range callers {
		go func() { errs <- o.Initialize(context.Background()) }()
	}
	for range callers {
		if err := <-errs; err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	waitReady(t, o)

	if got := mcptest.Spawns(dir); got != 2 {
		t.Errorf("expected one spawn per server, got %d", got)
	}
	if got := len(o.Status().Servers); got != 2 {
		t.Errorf("expected 2 registered servers, got %d", got)
	}
}

func TestMCPOrchestrator_Probe(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testMCPConfig(),
		fakeServerDef(mcp.ServerBraveSearch, mcptest.Options{StateDir: dir}))

	res, err := o.Probe(context.Background(), mcp.ServerBraveSearch)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !res.Success {
		t.Fatalf("probe failed: %s", res.Error)
	}
	if res.ServerName != "mcptest" {
		t.Errorf("expected server name mcptest, got %q", res.ServerName)
	}
	if len(res.Tools) != 2 || res.Tools[0] != "brave_web_search" {
		t.Errorf("unexpected tools: %v", res.Tools)
	}
	if _, ok := o.Status().Servers[mcp.ServerBraveSearch]; ok {
		t.Error("probe must not register a managed process")
	}

	if _, err := o.Probe(context.Background(), "nope"); !errors.Is(err, mcp.ErrUnknownServer) {
		t.Errorf("expected ErrUnknownServer, got %v", err)
	}
}

func TestLoadServerDefs(t *testing.T) {
	dir := t.TempDir()

	override := `name: braveSearch
command: /usr/local/bin/brave-mcp
required_env: [BRAVE_API_KEY]
`
	extra := `name: filesystem
description: local files
args: ["-y", "@modelcontextprotocol/server-filesystem", "/srv"]
env:
  TOKEN: secret
`
	if err := os.WriteFile(filepath.Join(dir, "brave.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fs.yml"), []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testMCPConfig()
	cfg.ServersDir = dir
	o := newTestOrchestrator(t, cfg)

	servers := o.Servers()
	if len(servers) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(servers))
	}
	if servers[0].Name != mcp.ServerBraveSearch || servers[0].Command != "/usr/local/bin/brave-mcp" {
		t.Errorf("expected overridden braveSearch first, got %+v", servers[0])
	}
	if servers[1].Name != mcp.ServerPinecone {
		t.Errorf("expected pinecone second, got %q", servers[1].Name)
	}
	if servers[2].Name != "filesystem" || servers[2].Env["TOKEN"] != "secret" {
		t.Errorf("unexpected extra server: %+v", servers[2])
	}
}

func TestLoadServerDefs_MissingAndInvalid(t *testing.T) {
	defs, err := LoadServerDefs("/nonexistent/path/mcp-servers")
	if err != nil || defs != nil {
		t.Fatalf("expected nil for missing directory, got %v, %v", defs, err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadServerDefs(dir); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
