package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventEscrowCreated      = "escrow.created"
	EventWorkStarted        = "escrow.work_started"
	EventMilestoneSubmitted = "escrow.milestone_submitted"
	EventMilestoneApproved  = "escrow.milestone_approved"
	EventMilestoneRejected  = "escrow.milestone_rejected"
	EventMilestoneDisputed  = "escrow.milestone_disputed"
	EventDisputeResolved    = "escrow.dispute_resolved"
	EventEscrowReleased     = "escrow.released"
	EventEscrowRefunded     = "escrow.refunded"
	EventEscrowExpired      = "escrow.expired"
	EventDeadlineExtended   = "escrow.deadline_extended"
	EventApplicationAdded   = "marketplace.application_added"
	EventFreelancerAccepted = "marketplace.freelancer_accepted"
	EventRatingSubmitted    = "reputation.rating_submitted"
	EventSettingsChanged    = "admin.settings_changed"
)

// EventTypes lists every event the services emit.
var EventTypes = []string{
	EventEscrowCreated,
	EventWorkStarted,
	EventMilestoneSubmitted,
	EventMilestoneApproved,
	EventMilestoneRejected,
	EventMilestoneDisputed,
	EventDisputeResolved,
	EventEscrowReleased,
	EventEscrowRefunded,
	EventEscrowExpired,
	EventDeadlineExtended,
	EventApplicationAdded,
	EventFreelancerAccepted,
	EventRatingSubmitted,
	EventSettingsChanged,
}

// EventPublisher delivers an encoded lifecycle event to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

type Event struct {
	Type     string
	EscrowID uint32
	Data     any
}

type eventEnvelope struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	EscrowID   uint32    `json:"escrow_id,omitempty"`
	Sequence   uint32    `json:"sequence"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

type emitter struct {
	publisher EventPublisher
	log       zerolog.Logger
}

// emit publishes events that belong to an already committed transaction.
// Failures are logged and never returned.
func (e emitter) emit(ctx context.Context, sequence uint32, events ...Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		payload, err := json.Marshal(eventEnvelope{
			EventID:    uuid.NewString(),
			Type:       ev.Type,
			EscrowID:   ev.EscrowID,
			Sequence:   sequence,
			OccurredAt: time.Now().UTC(),
			Data:       ev.Data,
		})
		if err != nil {
			e.log.Error().Err(err).Str("event", ev.Type).Msg("failed to encode event")
			continue
		}
		key := "platform"
		if ev.EscrowID != 0 {
			key = strconv.FormatUint(uint64(ev.EscrowID), 10)
		}
		if err := e.publisher.Publish(ctx, ev.Type, payload, key); err != nil {
			e.log.Warn().Err(err).Str("event", ev.Type).Uint32("escrow_id", ev.EscrowID).Msg("failed to publish event")
		}
	}
}
