// Package kafka publishes reconciled weather events to a Kafka topic for
// downstream consumers. Export is optional; the engine treats a failed
// export as a warning, never a query failure.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
)

// Exporter produces consolidated events to a Kafka topic.
// It implements engine.Exporter.
type Exporter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewExporter creates a Kafka producer for the export topic.
func NewExporter(brokers []string, topic string, logger *slog.Logger) *Exporter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Exporter{writer: w, logger: logger}
}

// ExportBatch serializes and publishes consolidated events in a single
// WriteMessages call for efficiency.
func (e *Exporter) ExportBatch(ctx context.Context, events []domain.WeatherEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return e.writer.WriteMessages(ctx, msgs...)
}

func (e *Exporter) Close() error {
	return e.writer.Close()
}

// serializeToMessage marshals a WeatherEvent into a Kafka message. The event
// ID keys the message so re-exports of the same window compact cleanly.
func serializeToMessage(event domain.WeatherEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize weather event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "data_quality", Value: []byte(event.Quality)},
			{Key: "observed_at", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
