package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iphone-scraper/models"
	"iphone-scraper/utils"
)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }

func sampleRecord(id int64) *models.CatalogRecord {
	return &models.CatalogRecord{
		Identifier:  id,
		Title:       "Apple iPhone 13 Pro",
		ModelFamily: strPtr("iPhone 13"),
		CapacityGB:  intPtr(256),
		PriceAmount: i64Ptr(320000),
		Condition:   strPtr("Kiváló"),
		Battery:     strPtr("89%"),
		IsPro:       true,
		SourceURL:   "https://hasznaltalma.hu/iphone/iphone-13-pro-256gb/" + "12345",
	}
}

type storeFactory func(t *testing.T, opts ...StoreOption) CatalogStore

func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("InsertSetsTimestamps", func(t *testing.T) {
		s := newStore(t, WithClock(stepClock()))
		rec := sampleRecord(12345)

		require.NoError(t, s.Upsert(ctx, rec))

		got, err := s.Get(ctx, 12345)
		require.NoError(t, err)
		assert.True(t, got.CreatedAt.Equal(got.UpdatedAt), "createdAt == updatedAt on insert")
		assert.Equal(t, "iPhone 13", *got.ModelFamily)
		assert.Equal(t, 256, *got.CapacityGB)
		assert.Equal(t, int64(320000), *got.PriceAmount)
		assert.Equal(t, "Kiváló", *got.Condition)
		assert.Equal(t, "89%", *got.Battery)
		assert.True(t, got.IsPro)
		assert.False(t, got.IsMax)
		assert.Equal(t, rec.SourceURL, got.SourceURL)
		assert.Equal(t, rec.Title, got.Title)
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		s := newStore(t, WithClock(stepClock()))

		require.NoError(t, s.Upsert(ctx, sampleRecord(777)))
		first, err := s.Get(ctx, 777)
		require.NoError(t, err)

		require.NoError(t, s.Upsert(ctx, sampleRecord(777)))
		second, err := s.Get(ctx, 777)
		require.NoError(t, err)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "createdAt unchanged")
		assert.False(t, second.UpdatedAt.Before(first.UpdatedAt), "updatedAt non-decreasing")
		assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	})

	t.Run("UpsertOverwritesEveryField", func(t *testing.T) {
		s := newStore(t, WithClock(stepClock()))
		require.NoError(t, s.Upsert(ctx, sampleRecord(42)))

		replacement := &models.CatalogRecord{
			Identifier: 42,
			SourceURL:  "https://hasznaltalma.hu/iphone/iphone-13/42",
		}
		require.NoError(t, s.Upsert(ctx, replacement))

		got, err := s.Get(ctx, 42)
		require.NoError(t, err)
		assert.False(t, got.IsPro, "isPro overwritten with false")
		assert.Nil(t, got.ModelFamily)
		assert.Nil(t, got.CapacityGB)
		assert.Nil(t, got.PriceAmount)
		assert.Nil(t, got.Condition)
		assert.Nil(t, got.Battery)
		assert.Equal(t, "", got.Title)
		assert.Equal(t, "https://hasznaltalma.hu/iphone/iphone-13/42", got.SourceURL)
	})

	t.Run("UpsertRejectsMissingIdentifier", func(t *testing.T) {
		s := newStore(t)

		assert.ErrorIs(t, s.Upsert(ctx, &models.CatalogRecord{SourceURL: "https://x/iphone-13/"}), ErrMissingIdentifier)
		assert.ErrorIs(t, s.Upsert(ctx, nil), ErrMissingIdentifier)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListAllReturnsEveryRecord", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []int64{3, 1, 2, 1} {
			require.NoError(t, s.Upsert(ctx, sampleRecord(id)))
		}

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		ids := make([]int64, 0, len(all))
		for _, r := range all {
			ids = append(ids, r.Identifier)
		}
		assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
	})

	t.Run("RecordsAreIsolatedFromCaller", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord(5)
		require.NoError(t, s.Upsert(ctx, rec))

		*rec.ModelFamily = "changed"
		*rec.CapacityGB = 1
		*rec.PriceAmount = 1
		*rec.Condition = "changed"
		*rec.Battery = "changed"

		got, err := s.Get(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "iPhone 13", *got.ModelFamily)
		assert.Equal(t, 256, *got.CapacityGB)
		assert.Equal(t, int64(320000), *got.PriceAmount)
		assert.Equal(t, "Kiváló", *got.Condition)
		assert.Equal(t, "89%", *got.Battery)

		*got.ModelFamily = "changed again"
		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "iPhone 13", *all[0].ModelFamily)

		*all[0].Battery = "changed again"
		again, err := s.Get(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "89%", *again.Battery)
	})

	t.Run("ConcurrentUpsertsKeepOneRow", func(t *testing.T) {
		s := newStore(t)
		pool := utils.NewWorkerPool(8, 0)
		for i := 0; i < 40; i++ {
			require.NoError(t, pool.Submit(ctx, func(ctx context.Context) {
				assert.NoError(t, s.Upsert(ctx, sampleRecord(9001)))
			}))
		}
		pool.Wait()

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, opts ...StoreOption) CatalogStore {
		return NewMemoryStore(opts...)
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, opts ...StoreOption) CatalogStore {
		s, err := NewSQLiteStore(":memory:", opts...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStorePersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/data/iphones.db"

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, sampleRecord(5)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Identifier)
}

// This test requires a running PostgreSQL reachable through POSTGRES_TEST_DSN.
// Without it the test is skipped.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping test")
	}

	runStoreSuite(t, func(t *testing.T, opts ...StoreOption) CatalogStore {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := NewPostgresStore(ctx, dsn, utils.NewNopLogger(), opts...)
		if err != nil {
			t.Skipf("PostgreSQL is not available, skipping test: %v", err)
		}
		require.NoError(t, s.Clear(ctx))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRebind(t *testing.T) {
	s := &sqlStore{dollarArgs: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	s.dollarArgs = false
	assert.Equal(t, "x = ?", s.rebind("x = ?"))
}
