package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"
)

// Event type constants for WebSocket messages.
const (
	EventTaskStatus   = "a2a.task.status"
	EventMessage      = "a2a.message"
	EventSession      = "a2a.session"
	EventCleanup      = "a2a.cleanup"
	EventMCPStatus    = "mcp.status"
	EventBusForwarded = "a2a.event"
)

// TaskStatusEvent is broadcast when a task is created or changes state.
type TaskStatusEvent struct {
	TaskID       string `json:"task_id"`
	SessionID    string `json:"session_id"`
	State        string `json:"state"`
	CurrentAgent string `json:"current_agent,omitempty"`
}

// MCPStatusEvent is broadcast when a tool server changes readiness.
type MCPStatusEvent struct {
	Server string `json:"server"`
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it. Payloads with a
// top-level session_id only reach clients of that session.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToSession(ctx, gjson.GetBytes(data, "session_id").String(), Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// ForwardBusEvent relays a raw event bus message. It has the shape of a
// messagequeue.Handler so the hub can subscribe to the A2A stream.
func (h *Hub) ForwardBusEvent(ctx context.Context, subject string, data []byte) error {
	payload, err := json.Marshal(map[string]json.RawMessage{
		"subject": mustRaw(subject),
		"data":    json.RawMessage(data),
	})
	if err != nil {
		return err
	}
	h.BroadcastToSession(ctx, gjson.GetBytes(data, "session_id").String(), Message{
		Type:    EventBusForwarded,
		Payload: payload,
	})
	return nil
}

func mustRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
