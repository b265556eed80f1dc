package service

import (
	"context"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/agentrelay/internal/domain/mcp"
)

const probeTimeout = 30 * time.Second

// MCPProbeResult is the outcome of a one-shot handshake with a tool server.
type MCPProbeResult struct {
	Success       bool     `json:"success"`
	ServerName    string   `json:"server_name,omitempty"`
	ServerVersion string   `json:"server_version,omitempty"`
	Tools         []string `json:"tools,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Probe launches a separate copy of the named server through the mcp-go
// stdio client, runs the initialize handshake and tools/list, then closes
// it. The managed process is left alone. Handshake failures are reported
// in the result; only unknown servers and missing env are errors.
func (o *MCPOrchestrator) Probe(ctx context.Context, name string) (*MCPProbeResult, error) {
	def, ok := o.defs[name]
	if !ok {
		return nil, fmt.Errorf("probe %s: %w", name, mcp.ErrUnknownServer)
	}
	if key, missing := def.MissingEnv(); missing {
		return nil, fmt.Errorf("probe %s: %w: %s", name, mcp.ErrMissingEnv, key)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	path := def.Command
	if path == "" {
		launcher, err := o.launcher(ctx)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", name, err)
		}
		path = launcher
	}

	client, err := mcpclient.NewStdioMCPClient(path, envMapToSlice(def.Env), def.Args...)
	if err != nil {
		return &MCPProbeResult{
			Success: false,
			Error:   fmt.Sprintf("failed to start client: %v", err),
		}, nil
	}
	defer client.Close() //nolint:errcheck // best-effort cleanup

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "agentrelay",
		Version: "1.0.0",
	}
	initResult, err := client.Initialize(ctx, initReq)
	if err != nil {
		return &MCPProbeResult{
			Success: false,
			Error:   fmt.Sprintf("initialize failed: %v", err),
		}, nil
	}

	result := &MCPProbeResult{
		Success:       true,
		ServerName:    initResult.ServerInfo.Name,
		ServerVersion: initResult.ServerInfo.Version,
	}

	toolsResult, err := client.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		result.Error = fmt.Sprintf("tools/list failed: %v", err)
		return result, nil
	}
	for i := range toolsResult.Tools {
		result.Tools = append(result.Tools, toolsResult.Tools[i].Name)
	}
	return result, nil
}

// envMapToSlice converts a map to the KEY=VALUE slice format expected by
// exec.Cmd. The stdio client appends it to the parent environment.
func envMapToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
