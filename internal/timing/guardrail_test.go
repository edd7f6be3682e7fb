package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finfold/reckon/internal/model"
)

func rentEntry(day int) model.LedgerEntry {
	return model.LedgerEntry{
		ID:          "entry-1",
		CompanyID:   "co-1",
		PostedAt:    time.Date(2025, 1, day, 10, 0, 0, 0, time.UTC),
		Direction:   model.DirectionOutflow,
		AmountCents: -320000,
		Currency:    "USD",
		Provenance:  model.Provenance{SourceEventID: "raw-1"},
	}
}

func TestGuardrailMonthlyAnchor(t *testing.T) {
	g := NewGuardrail([]CadenceRule{
		{Category: "RENT_UTILITIES", AnchorDay: 1, ToleranceDays: 2},
	})

	tests := []struct {
		name     string
		day      int
		wantFlag bool
	}{
		{"on anchor", 1, false},
		{"inside window", 3, false},
		{"just outside window", 4, true},
		{"well outside window", 6, true},
		{"mid month", 15, true},
		{"wrap-around day 27", 27, false},
		{"wrap-around day 29", 29, false},
		{"wrap-around day 31", 31, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exc := g.Check(rentEntry(tt.day), "RENT_UTILITIES")
			if tt.wantFlag {
				require.NotNil(t, exc)
				assert.Equal(t, model.ExceptionTiming, exc.Kind)
				assert.Equal(t, "entry-1", exc.LedgerEntryID)
				assert.Contains(t, exc.Reason, "anchor day 1")
			} else {
				assert.Nil(t, exc)
			}
		})
	}
}

func TestGuardrailSkipsUnconfiguredCategories(t *testing.T) {
	g := NewGuardrail([]CadenceRule{
		{Category: "RENT_UTILITIES", AnchorDay: 1, ToleranceDays: 2},
	})

	assert.Nil(t, g.Check(rentEntry(15), "SOFTWARE"))
}

func TestGuardrailMidMonthAnchor(t *testing.T) {
	g := NewGuardrail([]CadenceRule{
		{Category: "INSURANCE", AnchorDay: 15, ToleranceDays: 3},
	})

	assert.Nil(t, g.Check(rentEntry(13), "INSURANCE"))
	assert.Nil(t, g.Check(rentEntry(18), "INSURANCE"))
	assert.NotNil(t, g.Check(rentEntry(21), "INSURANCE"))
	assert.NotNil(t, g.Check(rentEntry(9), "INSURANCE"))
}
