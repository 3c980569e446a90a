package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Decoder converts a raw message into a raw reading.
type Decoder interface {
	Decode(ctx context.Context, msg domain.RawMessage) (domain.RawReading, error)
}

// BatchLoader appends decoded readings to the feed.
type BatchLoader interface {
	LoadBatch(ctx context.Context, readings []domain.RawReading) error
}

// Pipeline orchestrates the extract-decode-load loop that moves readings
// from a broker into the feed.
type Pipeline struct {
	extractor BatchExtractor
	decoder   Decoder
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	source    string
	batchSize int
}

// New creates a Pipeline with the given stages and observability. source
// labels the pipeline's metrics, e.g. "kafka".
func New(e BatchExtractor, d Decoder, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, source string, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		decoder:   d,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		source:    source,
		batchSize: batchSize,
	}
}

// Run executes the batch ingestion loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "source", p.source, "batch_size", p.batchSize)
	running := p.metrics.IngestRunning.WithLabelValues(p.source)
	running.Set(1)
	defer running.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-decode-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := p.decodeAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	}
	return true
}

// decodeAndLoad decodes each message in the batch, appends the successes to
// the feed, and commits offsets. Undecodable messages are committed and
// skipped so a poison pill cannot stall the partition. Returns the number of
// loaded readings and false if the pipeline should stop.
func (p *Pipeline) decodeAndLoad(ctx context.Context, rawBatch []domain.RawMessage, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	readings := make([]domain.RawReading, 0, len(rawBatch))
	decoded := make([]domain.RawMessage, 0, len(rawBatch))

	for _, msg := range rawBatch {
		raw, err := p.decoder.Decode(ctx, msg)
		if err != nil {
			p.logger.Warn("decode failed, skipping message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			p.metrics.DecodeErrors.WithLabelValues(p.source).Inc()
			p.commitOffset(ctx, msg)
			continue
		}
		readings = append(readings, raw)
		decoded = append(decoded, msg)
	}

	if len(readings) == 0 {
		return 0, true
	}

	if err := p.loader.LoadBatch(ctx, readings); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(readings))
		return 0, p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.metrics.ReadingsIngested.WithLabelValues(p.source).Add(float64(len(readings)))

	for _, msg := range decoded {
		p.commitOffset(ctx, msg)
	}

	return len(readings), true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, msg domain.RawMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}
