package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/service"
)

// createTestStorage creates a migrated SQLite store backed by a temp file.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// testStores returns both storage implementations so shared invariants are
// checked against each.
func testStores(t *testing.T) map[string]service.Storage {
	t.Helper()
	return map[string]service.Storage{
		"sqlite": createTestStorage(t),
		"memory": NewMemoryStorage(),
	}
}

func testRawEvent(id string) model.RawEvent {
	return model.RawEvent{
		ID:          id,
		CompanyID:   "co-1",
		Source:      model.RailCardProcessor,
		Kind:        model.KindCharge,
		ExternalID:  "ext-" + id,
		OccurredAt:  time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		AmountCents: -4200,
		Currency:    "USD",
	}
}

func TestSaveRawEventsIdempotent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ev := testRawEvent("raw-1")

			require.NoError(t, store.SaveRawEvents(ctx, []model.RawEvent{ev}))

			// Redelivery of the same event must be absorbed.
			redelivered := ev
			redelivered.Counterparty = "drifted payload"
			require.NoError(t, store.SaveRawEvents(ctx, []model.RawEvent{redelivered}))

			got, err := store.GetRawEvent(ctx, "raw-1")
			require.NoError(t, err)
			assert.Equal(t, "", got.Counterparty, "first write wins; raw events are immutable")
		})
	}
}

func TestSaveRawEventsRejectsMalformed(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		event model.RawEvent
	}{
		{"missing id", model.RawEvent{CompanyID: "co-1", Source: model.RailBankFeed, OccurredAt: time.Now(), Currency: "USD"}},
		{"missing company", model.RawEvent{ID: "r", Source: model.RailBankFeed, OccurredAt: time.Now(), Currency: "USD"}},
		{"missing currency", model.RawEvent{ID: "r", CompanyID: "co-1", Source: model.RailBankFeed, OccurredAt: time.Now()}},
		{"missing date", model.RawEvent{ID: "r", CompanyID: "co-1", Source: model.RailBankFeed, Currency: "USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.SaveRawEvents(ctx, []model.RawEvent{tt.event}))
		})
	}
}

func TestResolveOrCreateIdentity(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := store.ResolveOrCreateIdentity(ctx, "co-1", model.KindCharge, "fp-abc")
			require.NoError(t, err)
			require.NotEmpty(t, first)

			// Same fingerprint resolves to the same identity, kind unchanged.
			second, err := store.ResolveOrCreateIdentity(ctx, "co-1", model.KindRefund, "fp-abc")
			require.NoError(t, err)
			assert.Equal(t, first, second)

			ident, err := store.GetIdentityByFingerprint(ctx, "co-1", "fp-abc")
			require.NoError(t, err)
			assert.Equal(t, model.KindCharge, ident.CanonicalKind, "canonical kind is fixed at creation")

			// Same fingerprint under a different company is a different identity.
			other, err := store.ResolveOrCreateIdentity(ctx, "co-2", model.KindCharge, "fp-abc")
			require.NoError(t, err)
			assert.NotEqual(t, first, other)
		})
	}
}

func TestResolveOrCreateIdentityConcurrent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 8

			ids := make([]string, writers)
			errs := make([]error, writers)
			var wg sync.WaitGroup

			// Multiple rails reporting the same economic event near-simultaneously.
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					ids[n], errs[n] = store.ResolveOrCreateIdentity(ctx, "co-1", model.KindSettlement, "fp-racy")
				}(i)
			}
			wg.Wait()

			for i := 0; i < writers; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, ids[0], ids[i], "exactly one identity must win the race")
			}
		})
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.GetIdentityByFingerprint(ctx, "co-1", "fp-none")
	assert.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := createTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func resolveIdentity(t *testing.T, store service.Storage, companyID string) string {
	t.Helper()
	id, err := store.ResolveOrCreateIdentity(context.Background(), companyID, model.KindCharge, fmt.Sprintf("fp-%s-%d", companyID, time.Now().UnixNano()))
	require.NoError(t, err)
	return id
}
