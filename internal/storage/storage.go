// Package storage defines the request journal: a record of requests that
// completed the interception pipeline, written by the journal interceptor.
package storage

import (
	"context"
	"time"
)

// Entry is one journaled request.
type Entry struct {
	RequestID   string        `json:"request_id" db:"request_id"`
	Interceptor string        `json:"interceptor" db:"interceptor"`
	Method      string        `json:"method" db:"method"`
	Path        string        `json:"path" db:"path"`
	Status      int           `json:"status" db:"status"`
	Size        int           `json:"size" db:"size"`
	Duration    time.Duration `json:"duration_ns" db:"-"`
	Error       string        `json:"error,omitempty" db:"error"`
	HaltedBy    string        `json:"halted_by,omitempty" db:"halted_by"`
	CreatedAt   time.Time     `json:"created_at" db:"-"`
}

// Journal stores entries and lists the most recent ones.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Limits for Recent queries coming from the HTTP surface.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// ClampLimit normalizes a requested limit into [1, MaxRecentLimit], using
// DefaultRecentLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
