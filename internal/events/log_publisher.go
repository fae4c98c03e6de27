package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the log. It is used when no brokers are
// configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	p.log.Debug().
		Str("event", eventType).
		Str("key", partitionKey).
		RawJSON("payload", payload).
		Msg("event published")
	return nil
}
