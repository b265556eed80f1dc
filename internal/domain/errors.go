// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a request was rejected before reaching the store.
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates the write collides with existing state (duplicate key).
var ErrConflict = errors.New("conflict: resource already exists")

// ErrPersistence indicates the backing store failed to complete an operation.
// It is always joined with the underlying driver error.
var ErrPersistence = errors.New("persistence failure")
