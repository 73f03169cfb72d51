package odm

import (
	"context"
	"time"
)

type EventKind string

const (
	EventCreated    EventKind = "created"
	EventUpdated    EventKind = "updated"
	EventRemoved    EventKind = "removed"
	EventReinserted EventKind = "reinserted"
)

// Event describes a completed write.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Model      string      `json:"model"`
	Collection string      `json:"collection"`
	ID         interface{} `json:"id"`
	At         time.Time   `json:"at"`
}

// Observer is notified after each successful write of a Collection.
// Errors are logged by the collection and never change the write's result.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev Event) error { return f(ctx, ev) }
