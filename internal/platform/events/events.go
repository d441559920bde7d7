// Package events publishes domain events after their transaction commits.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types emitted by the domain services.
const (
	TransportReportSaved     = "transport_report.saved"
	TransportReportCompleted = "transport_report.completed"
	TransportReportDeleted   = "transport_report.deleted"
	InventoryRecorded        = "inventory.recorded"
)

// Event is the envelope written to the bus.
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Type        string      `json:"type"`
	AggregateID uuid.UUID   `json:"aggregate_id"`
	ActorID     uuid.UUID   `json:"actor_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	TraceID     string      `json:"trace_id,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
}

// New stamps an event id and time.
func New(eventType string, aggregateID, actorID uuid.UUID, payload interface{}) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		ActorID:     actorID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
	Close() error
}

// LogPublisher writes events to the log instead of a broker. It is used when
// no Kafka brokers are configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evts ...Event) error {
	for _, e := range evts {
		p.logger.Info().
			Str("event_id", e.ID.String()).
			Str("event_type", e.Type).
			Str("aggregate_id", e.AggregateID.String()).
			Str("actor_id", e.ActorID.String()).
			Msg("domain event")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evts ...Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
