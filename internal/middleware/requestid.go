// Package middleware provides HTTP middleware for agentrelay.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/agentrelay/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	headerSessionID = "X-Session-ID"
	maxIDLength     = 128
)

// RequestID stores the caller's X-Request-ID (or a new UUID) in the request
// context and echoes it on the response. An X-Session-ID header is carried
// into the context as well so log lines can be joined to A2A sessions.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxIDLength {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		if sid := r.Header.Get(headerSessionID); sid != "" && len(sid) <= maxIDLength {
			ctx = logger.WithSessionID(ctx, sid)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
