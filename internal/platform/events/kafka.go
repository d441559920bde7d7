package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/emsops/emsops/internal/platform/telemetry"
)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	Compression  string
}

// KafkaPublisher writes events keyed by aggregate id, so every event of one
// report lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger zerolog.Logger) *KafkaPublisher {
	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
	default:
		compression = kafka.Snappy
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			RequiredAcks:           kafka.RequireAll,
			Compression:            compression,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "events.KafkaPublisher.Publish")
	defer span.End()

	msgs, err := toMessages(ctx, evts)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		telemetry.RecordError(span, err)
		p.logger.Error().Err(err).Int("count", len(msgs)).Msg("failed to publish events")
		return fmt.Errorf("write kafka messages: %w", err)
	}

	for _, e := range evts {
		p.logger.Debug().
			Str("event_type", e.Type).
			Str("aggregate_id", e.AggregateID.String()).
			Msg("published event")
	}
	return nil
}

func toMessages(ctx context.Context, evts []Event) ([]kafka.Message, error) {
	traceID := telemetry.TraceID(ctx)
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		if e.TraceID == "" {
			e.TraceID = traceID
		}
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID.String()),
			Value: data,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		})
	}
	return msgs, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
