package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBuilder(t *testing.T) {
	event := NewEventBuilder(BackupCompleted).
		WithAggregateID("demo").
		WithAggregateType("search_service").
		WithPayload("succeeded", 3).
		WithCorrelationID("run-1").
		Build()

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, BackupCompleted, event.Type)
	assert.Equal(t, "demo", event.AggregateID)
	assert.Equal(t, "search_service", event.AggregateType)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, 3, event.Payload["succeeded"])
	assert.Equal(t, "run-1", event.Metadata.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestMemoryPublisher(t *testing.T) {
	publisher := &MemoryPublisher{}
	ctx := context.Background()

	require.NoError(t, publisher.Publish(ctx, NewEventBuilder(LifecycleStateChanged).Build()))
	require.NoError(t, publisher.Publish(ctx, NewEventBuilder(RestoreCompleted).Build()))

	published := publisher.Events()
	require.Len(t, published, 2)
	assert.Equal(t, LifecycleStateChanged, published[0].Type)
	assert.Equal(t, RestoreCompleted, published[1].Type)

	published[0].Type = "mutated"
	assert.Equal(t, LifecycleStateChanged, publisher.Events()[0].Type)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	publisher, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "indexvault.lifecycle"})
	require.NoError(t, err)
	assert.NoError(t, publisher.Close())
}

func TestNopPublisher(t *testing.T) {
	var publisher Publisher = NopPublisher{}
	assert.NoError(t, publisher.Publish(context.Background(), Event{}))
	assert.NoError(t, publisher.Close())
}
