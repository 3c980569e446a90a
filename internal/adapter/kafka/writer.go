package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/occupancy-service/internal/config"
	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// ReadingIDHeader carries the id assigned to a published reading.
const ReadingIDHeader = "reading_id"

// Writer produces occupancy readings to the readings topic, keyed by floor so
// that readings for one floor stay ordered within a partition.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured readings topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaReadingsTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Submit publishes a single reading and returns the id carried in its
// headers. The reading reaches the feed once the ingestion pipeline consumes it.
func (w *Writer) Submit(ctx context.Context, raw domain.RawReading) (string, error) {
	msg, id, err := serializeToMessage(raw)
	if err != nil {
		return "", err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("publish reading: %w", err)
	}
	return id, nil
}

// PublishBatch publishes multiple readings in a single WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, raws []domain.RawReading) error {
	if len(raws) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(raws))
	for i := range raws {
		msg, _, err := serializeToMessage(raws[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d readings: %w", len(msgs), err)
	}
	w.logger.Debug("published readings", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RawReading into a Kafka message with a fresh
// reading id.
func serializeToMessage(raw domain.RawReading) (kafkago.Message, string, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return kafkago.Message{}, "", fmt.Errorf("serialize reading: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return kafkago.Message{}, "", fmt.Errorf("generate reading id: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprint(raw.Floor)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: ReadingIDHeader, Value: []byte(id.String())},
		},
	}, id.String(), nil
}
