package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boardmigrate/internal/metrics"
)

// Config controls Orchestrator behavior.
type Config struct {
	// BatchSize is the number of buffered records that triggers a ledger
	// flush. Defaults to 50.
	BatchSize int
	// PoolWidth bounds per-item asset concurrency. Defaults to 5.
	PoolWidth int
	// ExpiryDelay is how long to wait before rebuilding the stream after a
	// cursor expiry. Defaults to 5s.
	ExpiryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PoolWidth <= 0 {
		c.PoolWidth = 5
	}
	if c.ExpiryDelay <= 0 {
		c.ExpiryDelay = 5 * time.Second
	}
	return c
}

// Orchestrator drives the end-to-end migration loop: resume from state,
// stream items, fan assets out to the processor pool, buffer records and
// flush them to the ledger in batches.
type Orchestrator struct {
	source   Source
	state    StateStore
	assets   AssetProcessor
	docs     DocProcessor
	ledger   Ledger
	notifier Notifier
	clock    Clock
	cfg      Config
	logger   *zap.Logger
	runID    string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New constructs an Orchestrator. assets, docs and notifier may be nil to
// disable the corresponding stage; clock may be nil to use the wall clock.
func New(
	source Source,
	state StateStore,
	assets AssetProcessor,
	docs DocProcessor,
	ledger Ledger,
	notifier Notifier,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Orchestrator{
		source:   source,
		state:    state,
		assets:   assets,
		docs:     docs,
		ledger:   ledger,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		runID:    uuid.NewString(),
	}
}

// Run executes the migration until the stream is exhausted, a fatal error
// occurs, or the context is canceled. Cursor expiries are absorbed by
// restarting pagination from the last persisted offset; the ledger's
// upsert-by-id semantics make the resulting re-delivery harmless.
func (o *Orchestrator) Run(ctx context.Context) error {
	index, err := o.ledger.BuildIndex(ctx)
	if err != nil {
		return fmt.Errorf("build ledger index: %w", err)
	}
	o.logger.Info("migration starting",
		zap.String("run_id", o.runID),
		zap.Int("known_rows", len(index)),
	)

	for {
		offset := o.state.Load()
		o.logger.Info("starting pass", zap.Int("offset", offset))

		err := o.runPass(ctx, offset, index)
		if errors.Is(err, ErrCursorExpired) {
			metrics.ObserveCursorExpiry()
			o.logger.Warn("cursor expired; restarting pagination from saved offset",
				zap.Duration("delay", o.cfg.ExpiryDelay),
			)
			if werr := sleepCtx(ctx, o.cfg.ExpiryDelay); werr != nil {
				return werr
			}
			continue
		}
		if err != nil {
			return err
		}
		o.logger.Info("migration finished", zap.String("run_id", o.runID))
		return nil
	}
}

// runPass consumes one stream to completion. It returns ErrCursorExpired
// (possibly wrapped) when the stream dies to an expired cursor, the
// context error on cancellation, or nil at natural end of stream.
func (o *Orchestrator) runPass(ctx context.Context, offset int, index map[string]int) error {
	stream := o.source.Stream(offset)
	batch := make([]SinkRecord, 0, o.cfg.BatchSize)
	nextOffset := offset

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, ok, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		nextOffset = item.Seq + 1

		if item.Name == "" {
			o.logger.Info("item has no name; skipping",
				zap.Int("seq", item.Seq),
				zap.String("source_id", item.SourceID),
			)
			metrics.ObserveItem(metrics.ItemSkipped)
			o.persistSkip(nextOffset, len(batch))
			continue
		}

		rec, produced := o.processItem(ctx, item)
		if ctx.Err() != nil {
			// The pool was abandoned mid-item; its partial results must
			// never reach the ledger.
			return ctx.Err()
		}
		if !produced {
			metrics.ObserveItem(metrics.ItemEmpty)
			o.persistSkip(nextOffset, len(batch))
			continue
		}

		metrics.ObserveItem(metrics.ItemMigrated)
		batch = append(batch, rec)
		o.notify(ctx, rec)

		if len(batch) >= o.cfg.BatchSize {
			if err := o.flush(ctx, batch, index, nextOffset); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := o.flush(ctx, batch, index, nextOffset); err != nil {
			return err
		}
	} else if nextOffset > offset {
		o.saveState(nextOffset)
	}
	return nil
}

// processItem aggregates the item's asset links and optional doc URL into
// a sink record. produced is false when nothing uploadable came out of the
// item; such items never reach the ledger but still advance progress.
func (o *Orchestrator) processItem(ctx context.Context, item Item) (rec SinkRecord, produced bool) {
	o.logger.Info("processing item",
		zap.Int("seq", item.Seq),
		zap.String("item", item.Name),
		zap.Int("assets", len(item.Assets)),
	)

	links := o.processAssets(ctx, item)

	var docURL string
	if o.docs != nil && ctx.Err() == nil {
		if u, ok := o.docs.Process(ctx, item); ok {
			docURL = u
		}
	}

	if len(links) == 0 && docURL == "" {
		if len(item.Assets) > 0 {
			o.logger.Warn("no links produced for item",
				zap.Int("seq", item.Seq),
				zap.String("item", item.Name),
			)
		}
		return SinkRecord{}, false
	}

	return SinkRecord{
		Name:     item.Name,
		SourceID: item.SourceID,
		Date:     o.clock.Now().Format("2006-01-02"),
		Links:    links,
		DocURL:   docURL,
	}, true
}

// processAssets fans the item's assets out to the processor pool and waits
// for the whole batch. Workers write only to their own result slot; link
// order is unspecified downstream, so completion order does not matter.
func (o *Orchestrator) processAssets(ctx context.Context, item Item) []string {
	if o.assets == nil || len(item.Assets) == 0 {
		return nil
	}

	results := make([]string, len(item.Assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.PoolWidth)
	for i, asset := range item.Assets {
		g.Go(func() error {
			if link, ok := o.assets.Process(gctx, asset, item.Name); ok {
				results[i] = link
			}
			return nil
		})
	}
	_ = g.Wait()

	links := make([]string, 0, len(results))
	for _, link := range results {
		if link != "" {
			links = append(links, link)
		}
	}
	return links
}

// flush writes the batch to the ledger and then persists the offset, so a
// crash can lose at most one unflushed batch.
func (o *Orchestrator) flush(ctx context.Context, batch []SinkRecord, index map[string]int, nextOffset int) error {
	if err := o.ledger.SyncBatch(ctx, batch, index); err != nil {
		return fmt.Errorf("sync batch of %d records: %w", len(batch), err)
	}
	metrics.ObserveBatchFlush(len(batch))
	o.logger.Info("batch flushed",
		zap.Int("records", len(batch)),
		zap.Int("next_offset", nextOffset),
	)
	o.saveState(nextOffset)
	return nil
}

// persistSkip advances the durable offset for a skipped item, but only
// while no records are buffered: writing an offset past unflushed records
// would let a crash lose them.
func (o *Orchestrator) persistSkip(nextOffset, buffered int) {
	if buffered == 0 {
		o.saveState(nextOffset)
	}
}

func (o *Orchestrator) saveState(offset int) {
	if err := o.state.Save(offset); err != nil {
		o.logger.Warn("state save failed", zap.Int("offset", offset), zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, rec SinkRecord) {
	if o.notifier == nil {
		return
	}
	o.notifier.ItemMigrated(ctx, rec.Name, rec.Links)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
