package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsByDomain(t *testing.T) {
	topics := TopicsByDomain("decentpay.", []string{"escrow.created", "marketplace.application_added", "plain"})

	assert.Equal(t, map[string]string{
		"escrow.created":                "decentpay.escrow",
		"marketplace.application_added": "decentpay.marketplace",
		"plain":                         "decentpay.plain",
	}, topics)
}

func TestKafkaPublisherTopic(t *testing.T) {
	_, err := NewKafkaPublisher(nil, nil)
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{"escrow.created": "escrows"})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "escrows", p.topic("escrow.created"))
	assert.Equal(t, "escrow.refunded", p.topic("escrow.refunded"))
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zerolog.Nop())
	require.NoError(t, p.Publish(context.Background(), "escrow.created", []byte(`{"escrow_id":1}`), "1"))
}
