// Package kafka implements the downstream observation forwarder.
package kafka

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/meshwx/station-ingest/internal/config"
	"github.com/meshwx/station-ingest/internal/domain"
)

// Forwarder publishes observation fingerprints to the sink topic. It
// implements runner.Forwarder; one call carries one pre-chunked batch.
type Forwarder struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewForwarder creates a Kafka producer for the configured sink topic.
func NewForwarder(cfg *config.Config, logger *slog.Logger) *Forwarder {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Forwarder{writer: w, logger: logger}
}

// Forward publishes one chunk in a single WriteMessages call. Messages are
// keyed by station id so one station's observations stay ordered within a
// partition.
func (f *Forwarder) Forward(ctx context.Context, chunk []string) error {
	if len(chunk) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(chunk))
	for i, fp := range chunk {
		msgs[i] = kafkago.Message{
			Key:   []byte(domain.FingerprintStation(fp)),
			Value: []byte(fp),
		}
	}
	return f.writer.WriteMessages(ctx, msgs...)
}

func (f *Forwarder) Close() error {
	return f.writer.Close()
}
