package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// maxLineSize bounds a single JSON-RPC line read from a tool server.
const maxLineSize = 4 << 20

// jsonrpcMessage is one JSON-RPC 2.0 message (request, response or notification).
type jsonrpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`     // nil for notifications
	Method  string          `json:"method,omitempty"` // present for requests/notifications
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object returned by a tool server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// idKey normalizes a wire id so numeric and string ids share one lookup
// table: 7 and "7" both map to "7".
func idKey(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// lineCodec implements newline-delimited JSON-RPC framing over a process's
// stdin and stdout.
type lineCodec struct {
	w       io.WriteCloser
	scanner *bufio.Scanner
	mu      sync.Mutex // protects writes
}

func newLineCodec(w io.WriteCloser, r io.Reader) *lineCodec {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &lineCodec{w: w, scanner: sc}
}

// send writes one request line. id is either a uint64 or a string.
func (c *lineCodec) send(id any, method string, params any) error {
	var rawID []byte
	switch v := id.(type) {
	case uint64:
		rawID = []byte(strconv.FormatUint(v, 10))
	case string:
		rawID, _ = json.Marshal(v)
	default:
		return fmt.Errorf("unsupported request id type %T", id)
	}

	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = b
	}

	data, err := json.Marshal(jsonrpcMessage{
		JSONRPC: mcplib.JSONRPC_VERSION,
		ID:      rawID,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// next returns the next non-empty line. io.EOF signals a closed stream.
func (c *lineCodec) next() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *lineCodec) close() error {
	return c.w.Close()
}
