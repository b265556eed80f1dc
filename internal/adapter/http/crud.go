package http

import (
	"context"
	"net/http"
)

// ---------------------------------------------------------------------------
// Generic read handler factories
// ---------------------------------------------------------------------------

// handleGetByParam creates a handler that reads one resource by URL param.
// A nil result is a 404.
func handleGetByParam[T any](param string, getFn func(ctx context.Context, id string) (*T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), urlParam(r, param))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		if item == nil {
			writeError(w, http.StatusNotFound, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleListByParam creates a handler that lists resources scoped by a URL
// param and an optional ?limit.
func handleListByParam[T any](param string, listFn func(ctx context.Context, id string, limit int) ([]T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		items, err := listFn(r.Context(), urlParam(r, param), limit)
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeList(w, items)
	}
}

// writeList writes items, rendering nil as an empty JSON array.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}
