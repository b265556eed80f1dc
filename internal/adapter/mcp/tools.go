package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentrelay/internal/domain/a2a"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getTaskTool(),
		s.listSessionTasksTool(),
		s.getStatsTool(),
		s.getToolStatusTool(),
	)
}

func (s *Server) getTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_a2a_task",
		mcplib.WithDescription("Get an agent-to-agent task by ID"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetTask,
	}
}

func (s *Server) listSessionTasksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_session_tasks",
		mcplib.WithDescription("List the tasks of a session, newest first"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID"),
		),
		mcplib.WithString("state",
			mcplib.Description("Only return tasks in this state"),
			mcplib.Enum("pending", "processing", "active", "completed", "failed", "cancelled"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListSessionTasks,
	}
}

func (s *Server) getStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_a2a_stats",
		mcplib.WithDescription("Get task, message, interaction and session totals"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetStats,
	}
}

func (s *Server) getToolStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_mcp_status",
		mcplib.WithDescription("Get readiness and queue depth of the supervised tool servers"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetToolStatus,
	}
}

func (s *Server) handleGetTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	taskID := req.GetString("task_id", "")
	if taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	t, err := s.deps.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get task %s", taskID), err), nil
	}
	if t == nil {
		return mcplib.NewToolResultError(fmt.Sprintf("task %s not found", taskID)), nil
	}
	return toolResultJSON(t, "task")
}

func (s *Server) handleListSessionTasks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	var state *a2a.TaskState
	if v := req.GetString("state", ""); v != "" {
		st := a2a.TaskState(v)
		state = &st
	}
	tasks, err := s.deps.Tasks.GetTasksBySession(ctx, sessionID, state)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to list tasks of session %s", sessionID), err), nil
	}
	if tasks == nil {
		tasks = []a2a.Task{}
	}
	return toolResultJSON(tasks, "tasks")
}

func (s *Server) handleGetStats(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("stats reader not configured"), nil
	}
	st, err := s.deps.Stats.GetStats(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get stats", err), nil
	}
	return toolResultJSON(st, "stats")
}

func (s *Server) handleGetToolStatus(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Status == nil {
		return mcplib.NewToolResultError("tool status not configured"), nil
	}
	return toolResultJSON(s.deps.Status.Status(), "status")
}

// toolResultJSON marshals v into a text result.
func toolResultJSON(v any, what string) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
