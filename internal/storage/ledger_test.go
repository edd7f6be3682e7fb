package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/service"
)

func testLedgerEntry(companyID, identityID, sourceEventID string, cents int64) model.LedgerEntry {
	return model.LedgerEntry{
		CompanyID:   companyID,
		IdentityID:  identityID,
		PostedAt:    time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		Direction:   model.DirectionForAmount(cents),
		AmountCents: cents,
		Currency:    "USD",
		Description: "test entry",
		Provenance: model.Provenance{
			SourceEventID: sourceEventID,
			Rail:          string(model.RailBankFeed),
		},
		Confidence: 1.0,
	}
}

func TestAppendLedgerEntryIdempotent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			identityID := resolveIdentity(t, store, "co-led")

			entry := testLedgerEntry("co-led", identityID, "raw-p1", -4200)
			require.NoError(t, store.AppendLedgerEntry(ctx, &entry))
			assert.NotEmpty(t, entry.ID)
			assert.Positive(t, entry.Seq)

			// Re-projecting the same raw event must not duplicate the entry.
			dup := testLedgerEntry("co-led", identityID, "raw-p1", -4200)
			err := store.AppendLedgerEntry(ctx, &dup)
			require.ErrorIs(t, err, common.ErrDuplicateEntry)

			entries, err := store.GetLedgerEntriesByIdentity(ctx, identityID)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestAppendLedgerEntryOnePerIdentity(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			identityID := resolveIdentity(t, store, "co-led")

			entry := testLedgerEntry("co-led", identityID, "raw-d1", -4200)
			require.NoError(t, store.AppendLedgerEntry(ctx, &entry))

			// Redelivery arrives under a fresh delivery id but resolves to the
			// same identity; it must add evidence, not a second cash fact.
			redelivered := testLedgerEntry("co-led", identityID, "raw-d1b", -4200)
			require.ErrorIs(t, store.AppendLedgerEntry(ctx, &redelivered), common.ErrDuplicateEntry)

			// Same for a second rail reporting the same settlement.
			crossRail := testLedgerEntry("co-led", identityID, "raw-card-d1", -4200)
			crossRail.Provenance.Rail = string(model.RailCardProcessor)
			require.ErrorIs(t, store.AppendLedgerEntry(ctx, &crossRail), common.ErrDuplicateEntry)

			entries, err := store.GetLedgerEntriesByIdentity(ctx, identityID)
			require.NoError(t, err)
			assert.Len(t, entries, 1)

			// A correction is the one sanctioned second entry.
			correction := testLedgerEntry("co-led", identityID, "raw-d1-corr", 4200)
			correction.Provenance.Corrects = entry.ID
			require.NoError(t, store.AppendLedgerEntry(ctx, &correction))

			entries, err = store.GetLedgerEntriesByIdentity(ctx, identityID)
			require.NoError(t, err)
			assert.Len(t, entries, 2)
		})
	}
}

func TestAppendLedgerEntryCausalOrder(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			identityID := resolveIdentity(t, store, "co-led")

			// Appended in ingest order; posted_at is deliberately reversed to
			// prove ordering follows durable ingestion, not wall-clock dates.
			first := testLedgerEntry("co-led", identityID, "raw-o1", -100)
			first.PostedAt = time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)

			require.NoError(t, store.AppendLedgerEntry(ctx, &first))

			second := testLedgerEntry("co-led", identityID, "raw-o2", 100)
			second.PostedAt = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
			second.Provenance.Corrects = first.ID
			require.NoError(t, store.AppendLedgerEntry(ctx, &second))

			entries, err := store.GetLedgerEntriesByIdentity(ctx, identityID)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "raw-o1", entries[0].Provenance.SourceEventID)
			assert.Equal(t, "raw-o2", entries[1].Provenance.SourceEventID)
			assert.Less(t, entries[0].Seq, entries[1].Seq)
		})
	}
}

func TestGetLedgerEntriesFilters(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			outflow := testLedgerEntry("co-fil", resolveIdentity(t, store, "co-fil"), "raw-f1", -5000)
			inflow := testLedgerEntry("co-fil", resolveIdentity(t, store, "co-fil"), "raw-f2", 7500)
			require.NoError(t, store.AppendLedgerEntry(ctx, &outflow))
			require.NoError(t, store.AppendLedgerEntry(ctx, &inflow))

			outflows, err := store.GetLedgerEntries(ctx, "co-fil", service.LedgerFilter{Direction: model.DirectionOutflow})
			require.NoError(t, err)
			require.Len(t, outflows, 1)
			assert.Equal(t, int64(-5000), outflows[0].AmountCents)

			all, err := store.GetLedgerEntries(ctx, "co-fil", service.LedgerFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 2)

			none, err := store.GetLedgerEntries(ctx, "co-other", service.LedgerFilter{})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestLedgerProvenanceRoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	identityID := resolveIdentity(t, store, "co-prov")

	entry := testLedgerEntry("co-prov", identityID, "raw-pr1", -999)
	entry.Provenance.Adapter = "ofx"
	entry.Provenance.EvidenceIDs = []string{"raw-pr1", "raw-pr2"}
	require.NoError(t, store.AppendLedgerEntry(ctx, &entry))

	// A correction is a new entry referencing the original via provenance.
	correction := testLedgerEntry("co-prov", identityID, "raw-pr1-corr", 999)
	correction.Provenance.Corrects = entry.ID
	require.NoError(t, store.AppendLedgerEntry(ctx, &correction))

	entries, err := store.GetLedgerEntriesByIdentity(ctx, identityID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"raw-pr1", "raw-pr2"}, entries[0].Provenance.EvidenceIDs)
	assert.Equal(t, entry.ID, entries[1].Provenance.Corrects)
}

func TestSaveClassificationRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			identityID := resolveIdentity(t, store, "co-cls")

			entry := testLedgerEntry("co-cls", identityID, "raw-c1", -3200)
			require.NoError(t, store.AppendLedgerEntry(ctx, &entry))

			unclassified, err := store.GetUnclassifiedOutflows(ctx, "co-cls")
			require.NoError(t, err)
			require.Len(t, unclassified, 1)

			c := &model.Classification{
				LedgerEntryID: entry.ID,
				Category:      "RENT_UTILITIES",
				Account:       "6100",
				Policy:        model.PolicyMustPay,
				Status:        model.StatusAutoPosted,
				RuleName:      "rent-vendor",
				Confidence:    0.95,
			}
			require.NoError(t, store.SaveClassification(ctx, c))

			got, err := store.GetClassification(ctx, entry.ID)
			require.NoError(t, err)
			assert.Equal(t, model.PolicyMustPay, got.Policy)
			assert.Equal(t, model.StatusAutoPosted, got.Status)

			unclassified, err = store.GetUnclassifiedOutflows(ctx, "co-cls")
			require.NoError(t, err)
			assert.Empty(t, unclassified)
		})
	}
}

func TestExceptionsRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			exc := &model.Exception{
				CompanyID:     "co-exc",
				Kind:          model.ExceptionTiming,
				Reason:        "posted 5 days after expected anchor day 1",
				LedgerEntryID: "entry-1",
			}
			require.NoError(t, store.SaveException(ctx, exc))
			assert.NotEmpty(t, exc.ID)

			got, err := store.ListExceptions(ctx, "co-exc")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, model.ExceptionTiming, got[0].Kind)
		})
	}
}
