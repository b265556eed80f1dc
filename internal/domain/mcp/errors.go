package mcp

import "errors"

// Orchestrator and connection failures. Callers match them with errors.Is.
var (
	ErrNotReady       = errors.New("mcp server not ready")
	ErrUnknownServer  = errors.New("unknown mcp server")
	ErrMissingEnv     = errors.New("missing required environment variable")
	ErrTimeout        = errors.New("mcp request timed out")
	ErrBackpressure   = errors.New("too many in-flight mcp requests")
	ErrProcessExited  = errors.New("mcp server process exited")
	ErrToolFailed     = errors.New("mcp tool returned an error")
	ErrNotInitialized = errors.New("mcp orchestrator not initialized")
)
