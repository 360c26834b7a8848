// Package events carries ethics application lifecycle events to interested
// consumers. Emission is fire-and-forget from the request path: a failed
// publish never rolls back the state transition that produced it.
package events

import "context"

type Type string

const (
	TypeCreated   Type = "created"
	TypeSubmitted Type = "submitted"
	TypeAccepted  Type = "accepted"
	TypeRejected  Type = "rejected"
)

// Event describes one lifecycle transition. Reviewer is set for submitted,
// accepted and rejected events.
type Event struct {
	Application int64
	Type        Type
	Reviewer    int64
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event. Used when publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
