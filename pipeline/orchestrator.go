// Package pipeline drives one batch of raw listings through normalization,
// catalog upserts and aggregation.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"iphone-scraper/models"
	apperrors "iphone-scraper/pkg/errors"
	"iphone-scraper/services"
	"iphone-scraper/storage"
	"iphone-scraper/utils"
)

// Orchestrator sequences normalize -> upsert -> aggregate for a batch.
// Normalization may fan out over a worker pool; upserts always run on the
// calling goroutine, one at a time.
type Orchestrator struct {
	store      storage.CatalogStore
	normalizer *services.Normalizer
	aggregator *services.Aggregator
	logger     *utils.Logger
	workers    int
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets how many goroutines normalize listings. Values below 2
// keep normalization sequential.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// New creates an Orchestrator writing to store.
func New(store storage.CatalogStore, logger *utils.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		normalizer: services.NewNormalizer(logger.Component("normalizer")),
		aggregator: services.NewAggregator(logger.Component("aggregator")),
		logger:     logger.Component("pipeline"),
		workers:    1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type normalized struct {
	listing *models.NormalizedListing
	err     error
}

// Run processes the batch. Per-record failures are counted and logged and
// never stop the batch; only a cancelled ctx ends it early, in which case
// the partial summary is returned with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, raws []*models.RawListing) (*models.BatchSummary, error) {
	summary := &models.BatchSummary{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
	}
	log := o.logger.With("run_id", summary.RunID)
	log.Info("[pipeline] Processing batch of %d raw listings", len(raws))

	results := o.normalizeAll(ctx, raws)

	valid := make([]*models.NormalizedListing, 0, len(results))
	var runErr error

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			log.Warn("[pipeline] Batch cancelled after %d of %d listings: %v", summary.Processed, len(results), err)
			runErr = err
			break
		}
		summary.Processed++

		switch {
		case apperrors.IsType(r.err, apperrors.ErrorTypeMissingIdentifier):
			summary.SkippedMissingID++
			log.Warn("[pipeline] Skipping listing without identifier: %v", r.err)
			continue
		case apperrors.IsType(r.err, apperrors.ErrorTypePriceParse):
			summary.PriceFailures++
			log.Warn("[pipeline] Skipping listing %d with unusable price: %v", *r.listing.Identifier, r.err)
			continue
		}

		valid = append(valid, r.listing)

		record := models.RecordFromListing(r.listing)
		if err := o.store.Upsert(ctx, record); err != nil {
			summary.StoreFailures++
			log.Error("[pipeline] %v", apperrors.NewStoreWrite(record.Identifier, err))
			continue
		}
		summary.Stored++
		log.Debug("[pipeline] Stored listing %d (%s)", record.Identifier, record.SourceURL)
	}

	summary.Aggregates = o.aggregator.Aggregate(valid)
	summary.FinishedAt = o.now()

	log.Info("[pipeline] Batch done: processed %d | stored %d | skipped %d (no id %d, bad price %d) | store failures %d | models %d",
		summary.Processed, summary.Stored, summary.Skipped(), summary.SkippedMissingID,
		summary.PriceFailures, summary.StoreFailures, len(summary.Aggregates))

	return summary, runErr
}

// Aggregator returns the aggregator, whose Print renders a summary.
func (o *Orchestrator) Aggregator() *services.Aggregator {
	return o.aggregator
}

// normalizeAll normalizes every raw listing, keeping input order. Entries
// left unset after ctx is done are never read, since Run stops first.
func (o *Orchestrator) normalizeAll(ctx context.Context, raws []*models.RawListing) []normalized {
	results := make([]normalized, len(raws))

	if o.workers < 2 {
		for i, raw := range raws {
			results[i].listing, results[i].err = o.normalizer.Normalize(raw)
		}
		return results
	}

	pool := utils.NewWorkerPool(o.workers, 0)
	for i, raw := range raws {
		err := pool.Submit(ctx, func(context.Context) {
			results[i].listing, results[i].err = o.normalizer.Normalize(raw)
		})
		if err != nil {
			break
		}
	}
	pool.Wait()
	return results
}
