// Package mcptest relaunches the running test binary as a scripted stdio
// tool server so process supervision can be tested without npx or network
// access. Use it from a helper test:
//
//	func TestHelperProcess(t *testing.T) { mcptest.Run() }
//
// and start servers with the path, args and env returned by Command.
package mcptest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	envHelper     = "AGENTRELAY_MCPTEST"
	envStateDir   = "AGENTRELAY_MCPTEST_STATE"
	envFailCalls  = "AGENTRELAY_MCPTEST_FAIL_CALLS"
	envUnhealthy  = "AGENTRELAY_MCPTEST_UNHEALTHY"
	envStartDelay = "AGENTRELAY_MCPTEST_START_DELAY"
)

// Options script the fake server.
type Options struct {
	// StateDir keeps spawn and call counters that survive restarts.
	StateDir string
	// FailCalls makes the first N tools/call requests, counted across all
	// spawns sharing StateDir, answer with a JSON-RPC error.
	FailCalls int
	// Unhealthy makes tools/list answer with an error.
	Unhealthy bool
	// StartDelay postpones serving after launch.
	StartDelay time.Duration
}

// Env returns the variables that turn a relaunched test binary into a
// fake server scripted by opts.
func Env(opts Options) map[string]string {
	env := map[string]string{
		envHelper:     "1",
		envStateDir:   opts.StateDir,
		envFailCalls:  strconv.Itoa(opts.FailCalls),
		envStartDelay: opts.StartDelay.String(),
	}
	if opts.Unhealthy {
		env[envUnhealthy] = "1"
	}
	return env
}

// Command returns the executable, arguments and environment that relaunch
// the current test binary as a fake server via the named helper test.
func Command(helperTest string, opts Options) (path string, args, env []string) {
	env = os.Environ()
	for k, v := range Env(opts) {
		env = append(env, k+"="+v)
	}
	return os.Args[0], Args(helperTest), env
}

// Args returns the test binary arguments selecting the helper test.
func Args(helperTest string) []string {
	return []string{"-test.run=^" + helperTest + "$"}
}

// Run serves on stdin/stdout and exits when launched by Command. In a
// normal test run it returns immediately.
func Run() {
	if os.Getenv(envHelper) != "1" {
		return
	}
	if d, err := time.ParseDuration(os.Getenv(envStartDelay)); err == nil && d > 0 {
		time.Sleep(d)
	}
	failCalls, _ := strconv.Atoi(os.Getenv(envFailCalls))
	s := &server{
		out:       os.Stdout,
		stateDir:  os.Getenv(envStateDir),
		failCalls: failCalls,
		unhealthy: os.Getenv(envUnhealthy) == "1",
	}
	s.bump("spawns")
	s.serve(os.Stdin)
	os.Exit(0)
}

// Spawns returns how many fake server processes started with dir.
func Spawns(dir string) int { return count(dir, "spawns") }

// Calls returns how many tools/call requests the fake servers received.
func Calls(dir string) int { return count(dir, "calls") }

func count(dir, name string) int {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return 0
	}
	return int(info.Size())
}

type server struct {
	out       io.Writer
	stateDir  string
	failCalls int
	unhealthy bool
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *server) serve(in io.Reader) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		var req request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil || len(req.ID) == 0 {
			continue
		}
		switch req.Method {
		case "initialize":
			s.reply(req.ID, map[string]any{
				"protocolVersion": "2025-03-26",
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "mcptest", "version": "0.0.0"},
			})
		case "tools/list":
			if s.unhealthy {
				s.replyError(req.ID, -32000, "not ready yet")
				continue
			}
			s.reply(req.ID, map[string]any{"tools": []map[string]any{
				{"name": "brave_web_search", "inputSchema": map[string]any{"type": "object"}},
				{"name": "search-records", "inputSchema": map[string]any{"type": "object"}},
			}})
		case "tools/call":
			s.handleCall(req)
		case "garbage":
			fmt.Fprintln(s.out, "this line is not json")
			s.reply(req.ID, map[string]any{"ok": true})
		case "stale":
			s.write(map[string]any{"jsonrpc": "2.0", "id": "no-such-request", "result": map[string]any{}})
			s.reply(req.ID, map[string]any{"ok": true})
		case "slow":
			// never answered
		case "exit":
			os.Exit(0)
		case "echo":
			s.reply(req.ID, json.RawMessage(req.Params))
		default:
			s.replyError(req.ID, -32601, "method not found: "+req.Method)
		}
	}
}

func (s *server) handleCall(req request) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	_ = json.Unmarshal(req.Params, &p)

	if n := s.bump("calls"); n <= s.failCalls {
		s.replyError(req.ID, -32000, fmt.Sprintf("injected failure %d", n))
		return
	}

	query, _ := p.Arguments["query"].(string)
	var text string
	switch p.Name {
	case "brave_web_search":
		text = fmt.Sprintf("Title: Result for %s\nDescription: fake web hit\nURL: https://example.com/?q=%s",
			query, url.QueryEscape(query))
	case "brave_local_search":
		text = fmt.Sprintf("Title: Local %s\nDescription: fake local hit\nURL: https://maps.example.com/?q=%s",
			query, url.QueryEscape(query))
	case "search-records":
		q, _ := p.Arguments["query"].(map[string]any)
		inputs, _ := q["inputs"].(map[string]any)
		b, _ := json.Marshal(map[string]any{"result": map[string]any{"hits": []map[string]any{
			{"_id": "rec-1", "_score": 0.91, "fields": map[string]any{"text": inputs["text"]}},
		}}})
		text = string(b)
	case "upsert-records":
		recs, _ := p.Arguments["records"].([]any)
		text = fmt.Sprintf(`{"upserted":%d}`, len(recs))
	case "hang":
		return
	default:
		s.reply(req.ID, map[string]any{
			"isError": true,
			"content": []map[string]any{{"type": "text", "text": "unknown tool " + p.Name}},
		})
		return
	}
	s.reply(req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
}

func (s *server) reply(id json.RawMessage, result any) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *server) replyError(id json.RawMessage, code int, msg string) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": code, "message": msg}})
}

func (s *server) write(v any) {
	b, _ := json.Marshal(v)
	b = append(b, '\n')
	_, _ = s.out.Write(b)
}

// bump appends one byte to a counter file and returns the new count.
func (s *server) bump(name string) int {
	if s.stateDir == "" {
		return 1
	}
	path := filepath.Join(s.stateDir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return 1
	}
	_, _ = f.Write([]byte{'.'})
	_ = f.Close()
	return count(s.stateDir, name)
}
