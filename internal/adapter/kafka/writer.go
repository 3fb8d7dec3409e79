package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/forcing-downloader/internal/config"
	"github.com/couchcryptid/forcing-downloader/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer announces completed downloads on a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured notification topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch publishes one message per download in a single WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, downloads []domain.Download) error {
	if len(downloads) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(downloads))
	for i := range downloads {
		msg, err := serializeToMessage(downloads[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish downloads: %w", err)
	}
	w.logger.Info("downloads published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Download into a Kafka message keyed by file name.
func serializeToMessage(d domain.Download) (kafkago.Message, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize download: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.Filename),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(d.Dataset)},
			{Key: "downloaded_at", Value: []byte(d.DownloadedAt.Format(time.RFC3339))},
		},
	}, nil
}
