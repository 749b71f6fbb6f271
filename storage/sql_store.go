package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"iphone-scraper/models"
)

const recordColumns = `product_id, title, model, capacity, price, item_condition, battery,
	is_pro, is_max, is_mini, is_se, url, created_at, updated_at`

// sqlStore implements CatalogStore over database/sql. Queries are written
// with '?' placeholders and rebound for drivers that need $n.
type sqlStore struct {
	db         *sql.DB
	name       string
	dollarArgs bool
	now        func() time.Time

	mu sync.Mutex
}

func (s *sqlStore) rebind(query string) string {
	if !s.dollarArgs {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Upsert writes the record inside one transaction. The store mutex keeps a
// single writer so last-write-wins holds per identifier.
func (s *sqlStore) Upsert(ctx context.Context, rec *models.CatalogRecord) error {
	if rec == nil || rec.Identifier <= 0 {
		return ErrMissingIdentifier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin upsert %d: %w", s.name, rec.Identifier, err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Truncate(time.Microsecond)
	createdAt, updatedAt := now, now

	var prevCreated, prevUpdated time.Time
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT created_at, updated_at FROM iphones WHERE product_id = ?`),
		rec.Identifier,
	).Scan(&prevCreated, &prevUpdated)
	switch {
	case err == nil:
		createdAt = prevCreated.UTC()
		updatedAt = laterOf(now, prevUpdated.UTC())
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("%s: lookup %d: %w", s.name, rec.Identifier, err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO iphones (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			title          = excluded.title,
			model          = excluded.model,
			capacity       = excluded.capacity,
			price          = excluded.price,
			item_condition = excluded.item_condition,
			battery        = excluded.battery,
			is_pro         = excluded.is_pro,
			is_max         = excluded.is_max,
			is_mini        = excluded.is_mini,
			is_se          = excluded.is_se,
			url            = excluded.url,
			updated_at     = excluded.updated_at
	`),
		rec.Identifier, rec.Title, nullString(rec.ModelFamily), nullInt(rec.CapacityGB),
		nullInt64(rec.PriceAmount), nullString(rec.Condition), nullString(rec.Battery),
		rec.IsPro, rec.IsMax, rec.IsMini, rec.IsSE, rec.SourceURL, createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: upsert %d: %w", s.name, rec.Identifier, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit upsert %d: %w", s.name, rec.Identifier, err)
	}

	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return nil
}

// Get returns the record with the given identifier or ErrNotFound.
func (s *sqlStore) Get(ctx context.Context, identifier int64) (*models.CatalogRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+recordColumns+` FROM iphones WHERE product_id = ?`), identifier)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get %d: %w", s.name, identifier, err)
	}
	return rec, nil
}

// ListAll retrieves every catalog record in insertion order.
func (s *sqlStore) ListAll(ctx context.Context) ([]*models.CatalogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM iphones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: list all: %w", s.name, err)
	}
	defer rows.Close()

	var records []*models.CatalogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.name, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.CatalogRecord, error) {
	var (
		rec                       models.CatalogRecord
		model, condition, battery sql.NullString
		capacity, price           sql.NullInt64
	)
	if err := row.Scan(
		&rec.Identifier, &rec.Title, &model, &capacity, &price, &condition, &battery,
		&rec.IsPro, &rec.IsMax, &rec.IsMini, &rec.IsSE, &rec.SourceURL,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if model.Valid {
		rec.ModelFamily = &model.String
	}
	if condition.Valid {
		rec.Condition = &condition.String
	}
	if battery.Valid {
		rec.Battery = &battery.String
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		rec.CapacityGB = &c
	}
	if price.Valid {
		rec.PriceAmount = &price.Int64
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
