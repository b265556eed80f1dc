package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/domain/mcp"
)

// Tool names exposed by the built-in servers.
const (
	toolBraveWebSearch   = "brave_web_search"
	toolBraveLocalSearch = "brave_local_search"
	toolSearchRecords    = "search-records"
	toolUpsertRecords    = "upsert-records"
)

// BraveWebSearch runs a web search on the search server.
func (o *MCPOrchestrator) BraveWebSearch(ctx context.Context, query string, opts mcp.SearchOptions) ([]mcp.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("web search: %w: query is required", domain.ErrValidation)
	}
	opts = opts.Defaults()

	text, err := o.callToolWithRetry(ctx, mcp.ServerBraveSearch, toolBraveWebSearch, map[string]any{
		"query":  query,
		"count":  opts.Count,
		"offset": opts.Offset,
	})
	if err != nil {
		return nil, err
	}
	return mcp.ParseSearchResults(text), nil
}

// BraveLocalSearch runs a local business search on the search server.
func (o *MCPOrchestrator) BraveLocalSearch(ctx context.Context, query string, count int) ([]mcp.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("local search: %w: query is required", domain.ErrValidation)
	}
	count = mcp.SearchOptions{Count: count}.Defaults().Count

	text, err := o.callToolWithRetry(ctx, mcp.ServerBraveSearch, toolBraveLocalSearch, map[string]any{
		"query": query,
		"count": count,
	})
	if err != nil {
		return nil, err
	}
	return mcp.ParseSearchResults(text), nil
}

// PineconeSearchRecords runs an integrated-embedding text search against
// one index namespace.
func (o *MCPOrchestrator) PineconeSearchRecords(ctx context.Context, index, namespace, query string, opts mcp.VectorSearchOptions) ([]mcp.VectorRecord, error) {
	if index == "" || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search records: %w: index and query are required", domain.ErrValidation)
	}
	opts = opts.Defaults()

	q := map[string]any{
		"topK":   opts.TopK,
		"inputs": map[string]any{"text": query},
	}
	if len(opts.Filter) > 0 {
		q["filter"] = opts.Filter
	}
	text, err := o.callToolWithRetry(ctx, mcp.ServerPinecone, toolSearchRecords, map[string]any{
		"name":      index,
		"namespace": namespace,
		"query":     q,
	})
	if err != nil {
		return nil, err
	}
	return mcp.ParseVectorRecords(text)
}

// PineconeUpsertRecords writes records into one index namespace and returns
// the raw tool reply text.
func (o *MCPOrchestrator) PineconeUpsertRecords(ctx context.Context, index, namespace string, records []mcp.VectorRecord) (string, error) {
	if index == "" {
		return "", fmt.Errorf("upsert records: %w: index is required", domain.ErrValidation)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("upsert records: %w: no records", domain.ErrValidation)
	}

	rows := make([]map[string]any, 0, len(records))
	for i := range records {
		rows = append(rows, records[i].UpsertRecord())
	}
	return o.callToolWithRetry(ctx, mcp.ServerPinecone, toolUpsertRecords, map[string]any{
		"name":      index,
		"namespace": namespace,
		"records":   rows,
	})
}

// callToolWithRetry calls a tool and, on failure, restarts its server once
// and retries. If the retry fails too, the first error is returned.
// Failures that say nothing about the process (a busy server, a tool
// level error, an orchestrator that was never started) are returned
// without a restart. When another caller already replaced the process
// the call is retried on the new one.
func (o *MCPOrchestrator) callToolWithRetry(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	used := o.handle(server)
	text, err := o.callTool(ctx, server, tool, args)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil || !restartable(err) {
		return "", err
	}

	slog.Warn("mcp tool call failed, restarting server", "server", server, "tool", tool, "error", err)
	if _, restartErr := o.restart(ctx, server, used); restartErr != nil {
		slog.Error("mcp server restart failed", "server", server, "error", restartErr)
		return "", err
	}

	text, retryErr := o.callTool(ctx, server, tool, args)
	if retryErr != nil {
		slog.Error("mcp tool retry failed", "server", server, "tool", tool, "error", retryErr)
		return "", err
	}
	return text, nil
}

// restartable reports whether err may mean the server process is broken.
func restartable(err error) bool {
	switch {
	case errors.Is(err, mcp.ErrUnknownServer),
		errors.Is(err, mcp.ErrBackpressure),
		errors.Is(err, mcp.ErrToolFailed),
		errors.Is(err, mcp.ErrNotInitialized):
		return false
	}
	return true
}

// callTool sends tools/call and returns the concatenated text content.
// A result flagged isError becomes ErrToolFailed.
func (o *MCPOrchestrator) callTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	raw, err := o.SendRequest(ctx, server, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	result, err := mcpprotocol.ParseCallToolResult(&raw)
	if err != nil {
		return "", fmt.Errorf("%s %s: parse result: %w", server, tool, err)
	}

	text := toolText(result)
	if result.IsError {
		return "", fmt.Errorf("%s %s: %w: %s", server, tool, mcp.ErrToolFailed, text)
	}
	return text, nil
}

func toolText(result *mcpprotocol.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := mcpprotocol.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && result.StructuredContent != nil {
		if b, err := json.Marshal(result.StructuredContent); err == nil {
			return string(b)
		}
	}
	return strings.Join(parts, "\n")
}
