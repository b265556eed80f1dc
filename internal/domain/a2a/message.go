package a2a

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
)

// DefaultProtocolVersion is stamped on messages that do not carry one.
const DefaultProtocolVersion = "1.0"

// ProcessingStatus tracks how far a logged message has been handled.
type ProcessingStatus string

const (
	MessagePending    ProcessingStatus = "pending"
	MessageProcessing ProcessingStatus = "processing"
	MessageCompleted  ProcessingStatus = "completed"
	MessageFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is a recognized status.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case MessagePending, MessageProcessing, MessageCompleted, MessageFailed:
		return true
	}
	return false
}

// Message is one logged protocol message. Messages are append-only; only
// the processing status changes after insert.
type Message struct {
	ID              string           `json:"message_id"`
	TaskID          string           `json:"task_id,omitempty"`
	SessionID       string           `json:"session_id"`
	UserID          int64            `json:"user_id"`
	SenderType      string           `json:"sender_type"`
	SenderAgent     string           `json:"sender_agent,omitempty"`
	ReceiverType    string           `json:"receiver_type,omitempty"`
	ReceiverAgent   string           `json:"receiver_agent,omitempty"`
	MessageType     string           `json:"message_type"`
	Content         string           `json:"content"`
	StructuredData  Payload          `json:"structured_data"`
	Attachments     []any            `json:"attachments"`
	ProtocolVersion string           `json:"protocol_version"`
	Classification  Payload          `json:"classification_data,omitempty"`
	Status          ProcessingStatus `json:"processing_status"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	Metadata        Payload          `json:"metadata"`
	CreatedAt       time.Time        `json:"created_at"`
}

// LogMessageRequest carries the fields of a message to append.
type LogMessageRequest struct {
	TaskID          string  `json:"task_id,omitempty"`
	SessionID       string  `json:"session_id"`
	UserID          int64   `json:"user_id"`
	SenderType      string  `json:"sender_type"`
	SenderAgent     string  `json:"sender_agent,omitempty"`
	ReceiverType    string  `json:"receiver_type,omitempty"`
	ReceiverAgent   string  `json:"receiver_agent,omitempty"`
	MessageType     string  `json:"message_type"`
	Content         string  `json:"content"`
	StructuredData  Payload `json:"structured_data,omitempty"`
	Attachments     []any   `json:"attachments,omitempty"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	Classification  Payload `json:"classification_data,omitempty"`
	Metadata        Payload `json:"metadata,omitempty"`
}

// Validate checks the required fields and fills in defaults.
func (r *LogMessageRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	if r.SenderType == "" {
		return fmt.Errorf("%w: sender_type is required", domain.ErrValidation)
	}
	if r.MessageType == "" {
		return fmt.Errorf("%w: message_type is required", domain.ErrValidation)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if r.ProtocolVersion == "" {
		r.ProtocolVersion = DefaultProtocolVersion
	}
	if r.Attachments == nil {
		r.Attachments = []any{}
	}
	r.StructuredData = r.StructuredData.OrEmpty()
	r.Metadata = r.Metadata.OrEmpty()
	return nil
}
