package events

import (
	"context"
	"time"
)

// VoteEvent is the record emitted for every accepted vote. The voter hint is
// deliberately omitted: the stream is for aggregate analytics only.
type VoteEvent struct {
	VoteID    string    `json:"vote_id"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"option_id"`
	CreatedAt time.Time `json:"created_at"`
}

// VotePublisher emits accepted votes to an external stream.
type VotePublisher interface {
	Publish(ctx context.Context, event VoteEvent) error
	Close() error
}

// NoopPublisher discards all events. Used when the event stream is disabled.
type NoopPublisher struct{}

// Publish implements VotePublisher.
func (NoopPublisher) Publish(context.Context, VoteEvent) error { return nil }

// Close implements VotePublisher.
func (NoopPublisher) Close() error { return nil }
