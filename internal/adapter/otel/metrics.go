package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentrelay"

// Metrics holds all agentrelay metric instruments.
type Metrics struct {
	TasksCreated      metric.Int64Counter
	TaskUpdates       metric.Int64Counter
	MessagesLogged    metric.Int64Counter
	Interactions      metric.Int64Counter
	StoreErrors       metric.Int64Counter
	SessionsExpired   metric.Int64Counter
	TasksArchived     metric.Int64Counter
	ToolCalls         metric.Int64Counter
	ToolCallFailures  metric.Int64Counter
	ServerRestarts    metric.Int64Counter
	ToolCallDuration  metric.Float64Histogram
	StoreCallDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.TasksCreated, "agentrelay.a2a.tasks.created", "A2A tasks created"},
		{&m.TaskUpdates, "agentrelay.a2a.tasks.updated", "A2A task updates applied"},
		{&m.MessagesLogged, "agentrelay.a2a.messages.logged", "A2A messages logged"},
		{&m.Interactions, "agentrelay.a2a.interactions.logged", "Agent interactions logged"},
		{&m.StoreErrors, "agentrelay.a2a.store.errors", "Store operations that failed"},
		{&m.SessionsExpired, "agentrelay.a2a.sessions.expired", "Sessions deactivated by cleanup"},
		{&m.TasksArchived, "agentrelay.a2a.tasks.archived", "Tasks archived by cleanup"},
		{&m.ToolCalls, "agentrelay.mcp.toolcalls", "Tool server requests sent"},
		{&m.ToolCallFailures, "agentrelay.mcp.toolcalls.failed", "Tool server requests that failed"},
		{&m.ServerRestarts, "agentrelay.mcp.restarts", "Tool server restarts"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.ToolCallDuration, err = meter.Float64Histogram("agentrelay.mcp.toolcall.duration_seconds",
		metric.WithDescription("Tool server request latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.StoreCallDuration, err = meter.Float64Histogram("agentrelay.a2a.store.duration_seconds",
		metric.WithDescription("A2A store operation latency in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
