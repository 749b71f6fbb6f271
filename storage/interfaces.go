package storage

import (
	"context"
	"errors"
	"time"

	"iphone-scraper/models"
)

var (
	// ErrMissingIdentifier is returned by Upsert for a record without a catalog key.
	ErrMissingIdentifier = errors.New("catalog record has no identifier")
	// ErrNotFound is returned by Get when no record has the identifier.
	ErrNotFound = errors.New("catalog record not found")
)

// CatalogStore is the keyed persistent collection of listings. Upsert inserts
// a record or fully overwrites the existing one with the same identifier.
type CatalogStore interface {
	Upsert(ctx context.Context, record *models.CatalogRecord) error
	Get(ctx context.Context, identifier int64) (*models.CatalogRecord, error)
	ListAll(ctx context.Context) ([]*models.CatalogRecord, error)
	Close() error
}

// RawListingWriter is the interface for persisting unprocessed scraped data.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}

// ReportPublisher delivers a finished batch summary to downstream consumers.
type ReportPublisher interface {
	Publish(ctx context.Context, summary *models.BatchSummary) error
	Close() error
}

// StoreOption configures a CatalogStore.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock replaces the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func applyOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// laterOf keeps updatedAt from moving backwards when the clock does.
func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
