package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoopPublisher(t *testing.T) {
	var p VotePublisher = NoopPublisher{}

	require.NoError(t, p.Publish(context.Background(), VoteEvent{
		VoteID:    "v1",
		PollID:    "p1",
		OptionID:  "o1",
		CreatedAt: time.Now(),
	}))
	require.NoError(t, p.Close())
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "votes")
	require.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "votes")
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
