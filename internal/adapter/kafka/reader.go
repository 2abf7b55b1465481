package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seawhisper/alert-monitor/internal/config"
	"github.com/seawhisper/alert-monitor/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes reading messages from the readings topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	brokers       []string
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for the configured readings topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaReadingsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  cfg.IngestFlushInterval,
	})
	return &Reader{reader: r, brokers: cfg.KafkaBrokers, flushInterval: cfg.IngestFlushInterval, logger: logger}
}

// ExtractBatch blocks for the first message, then collects more until
// batchSize is reached or the flush interval elapses. Offsets are not
// committed here; each RawReading carries its own Commit.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawReading, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	batch := make([]domain.RawReading, 0, batchSize)
	batch = append(batch, r.toRaw(msg))

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			break
		}
		batch = append(batch, r.toRaw(msg))
	}
	return batch, nil
}

// CheckReadiness returns nil when any configured broker accepts a connection.
func (r *Reader) CheckReadiness(ctx context.Context) error {
	if len(r.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var lastErr error
	for _, b := range r.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", b)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("kafka brokers unreachable: %w", lastErr)
}

// Close closes the underlying consumer.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) toRaw(msg kafkago.Message) domain.RawReading {
	raw := mapMessageToRawReading(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw
}

func mapMessageToRawReading(msg kafkago.Message) domain.RawReading {
	var headers map[string]string
	if len(msg.Headers) > 0 {
		headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
	}
	return domain.RawReading{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Headers:   headers,
	}
}
