package plaidfeed

import (
	"testing"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finfold/reckon/internal/model"
)

func plaidTxn(id, name, date string, amount float64) plaid.Transaction {
	var pt plaid.Transaction
	pt.SetTransactionId(id)
	pt.SetName(name)
	pt.SetDate(date)
	pt.SetAmount(amount)
	pt.SetAccountId("acct-plaid-1")
	pt.SetIsoCurrencyCode("USD")
	pt.SetPending(false)
	return pt
}

func TestConvert(t *testing.T) {
	payroll := plaidTxn("txn-1", "GUSTO PAYROLL 8812", "2025-03-01", 18750.00)
	payroll.SetMerchantName("Gusto")
	payroll.SetCategory([]string{"Payroll", "Transfer"})

	deposit := plaidTxn("txn-2", "STRIPE TRANSFER", "2025-03-14", -5012.00)

	events := Convert("co-1", []plaid.Transaction{payroll, deposit})
	require.Len(t, events, 2)

	out := events[0]
	assert.Equal(t, "plaid:txn-1", out.ID)
	assert.Equal(t, "co-1", out.CompanyID)
	assert.Equal(t, model.RailLedgerAPI, out.Source)
	assert.Equal(t, model.KindPayment, out.Kind, "positive Plaid amount is money out")
	assert.Equal(t, "txn-1", out.ExternalID)
	assert.Equal(t, "acct-plaid-1", out.AccountRef)
	assert.Equal(t, "Gusto", out.Counterparty, "merchant name preferred over raw name")
	assert.Equal(t, "Payroll", out.CategoryHint)
	assert.Equal(t, int64(-1875000), out.AmountCents, "sign flips to ledger convention")
	assert.Equal(t, "USD", out.Currency)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), out.OccurredAt)
	assert.NotEmpty(t, out.RawPayload)

	in := events[1]
	assert.Equal(t, model.KindSettlement, in.Kind, "negative Plaid amount is money in")
	assert.Equal(t, int64(501200), in.AmountCents)
	assert.Equal(t, "STRIPE TRANSFER", in.Counterparty)
}

func TestConvertSkipsPending(t *testing.T) {
	pending := plaidTxn("txn-1", "PENDING CHARGE", "2025-03-10", 42.00)
	pending.SetPending(true)

	events := Convert("co-1", []plaid.Transaction{pending})
	assert.Empty(t, events)
}

func TestConvertSkipsBadDates(t *testing.T) {
	bad := plaidTxn("txn-1", "WEIRD", "03/10/2025", 42.00)
	good := plaidTxn("txn-2", "FINE", "2025-03-10", 42.00)

	events := Convert("co-1", []plaid.Transaction{bad, good})
	require.Len(t, events, 1)
	assert.Equal(t, "plaid:txn-2", events[0].ID)
}
