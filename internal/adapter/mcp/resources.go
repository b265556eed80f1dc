package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs served by the MCP server.
const (
	ResourceStats     = "agentrelay://stats"
	ResourceMCPStatus = "agentrelay://mcp/status"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			ResourceStats,
			"A2A Stats",
			mcplib.WithResourceDescription("Task, message, interaction and session totals"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			ResourceMCPStatus,
			"Tool Server Status",
			mcplib.WithResourceDescription("Readiness of the supervised tool servers"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatusResource,
	)
}

func (s *Server) handleStatsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Stats == nil {
		return jsonResource(req.Params.URI, `{"error":"stats reader not configured"}`), nil
	}
	st, err := s.deps.Stats.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func (s *Server) handleStatusResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Status == nil {
		return jsonResource(req.Params.URI, `{"error":"tool status not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Status.Status())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func jsonResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
