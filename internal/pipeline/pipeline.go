// Package pipeline moves readings from a message transport into the reading
// store: extract a batch, decode each message, insert the decoded readings,
// then commit offsets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/seawhisper/alert-monitor/internal/domain"
	"github.com/seawhisper/alert-monitor/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw reading messages.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawReading, error)
}

// Decoder turns a raw message into a validated reading.
type Decoder interface {
	Decode(ctx context.Context, raw domain.RawReading) (domain.Reading, error)
}

// ReadingSink stores decoded readings.
type ReadingSink interface {
	InsertReadings(ctx context.Context, readings []domain.Reading) error
}

// Pipeline runs the ingestion loop.
type Pipeline struct {
	extractor BatchExtractor
	decoder   Decoder
	sink      ReadingSink
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int

	running atomic.Bool
	failing atomic.Bool

	// A batch whose insert failed. It is retried before anything new is
	// fetched because the consumer does not rewind uncommitted offsets.
	pending    []domain.Reading
	pendingRaw []domain.RawReading
}

// New creates a Pipeline.
func New(e BatchExtractor, d Decoder, s ReadingSink, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		decoder:   d,
		sink:      s,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil while Run is active and its last extract or
// insert succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("ingestion pipeline is not running")
	}
	if p.failing.Load() {
		return errors.New("ingestion pipeline is retrying a failed batch")
	}
	return nil
}

// Run ingests batches until ctx is cancelled. Extract and insert failures
// are retried with exponential backoff; undecodable messages are skipped
// and committed with the rest of their batch.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("ingestion pipeline started", "batch_size", p.batchSize)
	p.metrics.IngestRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.IngestRunning.Set(0)
	}()

	backoff := initialBackoff
	for ctx.Err() == nil {
		if err := p.step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.failing.Store(true)
			p.logger.Error("ingestion step failed", "error", err, "retry_in", backoff)
			if !retry.SleepWithContext(ctx, backoff) {
				break
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		p.failing.Store(false)
		backoff = initialBackoff
	}

	p.logger.Info("ingestion pipeline stopping", "reason", ctx.Err())
	return nil
}

// step stores one batch. When the insert fails the batch is kept and the
// next step retries it; no offset in the batch is committed until the
// insert succeeds.
func (p *Pipeline) step(ctx context.Context) error {
	if len(p.pendingRaw) == 0 {
		if err := p.fetch(ctx); err != nil {
			return err
		}
	}
	if len(p.pendingRaw) == 0 {
		return nil
	}

	if len(p.pending) > 0 {
		if err := p.sink.InsertReadings(ctx, p.pending); err != nil {
			return fmt.Errorf("insert %d readings: %w", len(p.pending), err)
		}
		p.metrics.ReadingsIngested.Add(float64(len(p.pending)))
	}

	for _, raw := range p.pendingRaw {
		p.commit(ctx, raw)
	}
	p.pending, p.pendingRaw = nil, nil
	return nil
}

// fetch extracts and decodes the next batch into pending.
func (p *Pipeline) fetch(ctx context.Context) error {
	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	p.metrics.IngestBatchSize.Observe(float64(len(batch)))

	readings := make([]domain.Reading, 0, len(batch))
	for _, raw := range batch {
		r, err := p.decoder.Decode(ctx, raw)
		if err != nil {
			p.metrics.IngestErrors.Inc()
			p.logger.Warn("decode reading failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			continue
		}
		readings = append(readings, r)
	}
	p.pending, p.pendingRaw = readings, batch
	return nil
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawReading) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
