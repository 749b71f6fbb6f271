package models

import "time"

// RawListing holds the unprocessed fields of one marketplace row as scraped
// from the page. Condition and Battery are nil when the row had no such span.
type RawListing struct {
	Title     string
	PriceText string
	Condition *string
	Battery   *string
	URL       string
	ScrapedAt time.Time
}

// NormalizedListing is the typed result of normalizing a RawListing.
// Pointer fields are nil when the value could not be derived.
type NormalizedListing struct {
	Identifier  *int64
	Title       string
	ModelFamily *string
	CapacityGB  *int
	PriceAmount *int64
	Condition   *string
	Battery     *string
	IsPro       bool
	IsMax       bool
	IsMini      bool
	IsSE        bool
	SourceURL   string
}

// CatalogRecord is one persisted row of the catalog, unique per Identifier.
type CatalogRecord struct {
	Identifier  int64     `json:"identifier"`
	Title       string    `json:"title"`
	ModelFamily *string   `json:"model_family,omitempty"`
	CapacityGB  *int      `json:"capacity_gb,omitempty"`
	PriceAmount *int64    `json:"price,omitempty"`
	Condition   *string   `json:"condition,omitempty"`
	Battery     *string   `json:"battery,omitempty"`
	IsPro       bool      `json:"is_pro"`
	IsMax       bool      `json:"is_max"`
	IsMini      bool      `json:"is_mini"`
	IsSE        bool      `json:"is_se"`
	SourceURL   string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordFromListing copies the mutable fields of a normalized listing into a
// catalog record. The caller must have checked that Identifier is set.
func RecordFromListing(l *NormalizedListing) *CatalogRecord {
	r := &CatalogRecord{
		Title:       l.Title,
		ModelFamily: l.ModelFamily,
		CapacityGB:  l.CapacityGB,
		PriceAmount: l.PriceAmount,
		Condition:   l.Condition,
		Battery:     l.Battery,
		IsPro:       l.IsPro,
		IsMax:       l.IsMax,
		IsMini:      l.IsMini,
		IsSE:        l.IsSE,
		SourceURL:   l.SourceURL,
	}
	if l.Identifier != nil {
		r.Identifier = *l.Identifier
	}
	return r
}

// AggregateEntry holds the per-model statistics of one batch.
type AggregateEntry struct {
	AveragePrice float64 `json:"average_price"`
	Count        int     `json:"count"`
}

// AggregateReport maps a model family (e.g. "iPhone 13") to its statistics.
type AggregateReport map[string]AggregateEntry

// BatchSummary is the outcome of one pipeline run.
type BatchSummary struct {
	RunID            string          `json:"run_id"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	Processed        int             `json:"processed"`
	Stored           int             `json:"stored"`
	SkippedMissingID int             `json:"skipped_missing_id"`
	PriceFailures    int             `json:"price_failures"`
	StoreFailures    int             `json:"store_failures"`
	Aggregates       AggregateReport `json:"aggregates"`
}

// Skipped returns the number of records that never reached the store.
func (s *BatchSummary) Skipped() int {
	return s.SkippedMissingID + s.PriceFailures
}
