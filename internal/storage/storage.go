package storage

import (
	"context"
	"time"
)

// Event is one recorded registry operation.
type Event struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Tools     []string  `json:"tools"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOptions controls filtering and pagination for List.
type ListOptions struct {
	Action string
	Tool   string
	Limit  int
}

// Store is the persistence interface for the change history.
type Store interface {
	// Record inserts an event. An empty ID is filled with a new UUID and
	// a zero CreatedAt with the current time.
	Record(ctx context.Context, e *Event) error

	// List returns events, newest first.
	List(ctx context.Context, opts ListOptions) ([]Event, error)

	// Close releases resources.
	Close() error
}
