// Package plaidfeed converts transactions fetched through the Plaid API into
// raw events on the ledger-API rail. The converter is network-free; token
// management and fetching live with the caller.
package plaidfeed

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"

	"github.com/finfold/reckon/internal/model"
)

// AdapterName identifies this adapter in provenance records.
const AdapterName = "plaid-feed"

// Convert maps Plaid transactions to raw events. Pending transactions are
// skipped; they are re-reported once they post, under the same transaction
// id. A transaction with an unparseable date is logged and dropped rather
// than ingested with a fabricated timestamp.
func Convert(companyID string, txns []plaid.Transaction) []model.RawEvent {
	events := make([]model.RawEvent, 0, len(txns))

	for _, pt := range txns {
		if pt.GetPending() {
			continue
		}

		occurredAt, err := time.Parse("2006-01-02", pt.GetDate())
		if err != nil {
			slog.Warn("Skipping Plaid transaction with bad date",
				"transaction_id", pt.GetTransactionId(),
				"date", pt.GetDate(),
				"error", err)
			continue
		}

		cents := plaidCents(pt.GetAmount())

		counterparty := pt.GetMerchantName()
		if counterparty == "" {
			counterparty = pt.GetName()
		}

		currency := pt.GetIsoCurrencyCode()
		if currency == "" {
			currency = pt.GetUnofficialCurrencyCode()
		}

		var hint string
		if categories := pt.GetCategory(); len(categories) > 0 {
			hint = categories[0]
		}

		payload, _ := json.Marshal(map[string]any{
			"transaction_id": pt.GetTransactionId(),
			"name":           pt.GetName(),
			"merchant_name":  pt.GetMerchantName(),
			"amount":         pt.GetAmount(),
			"category":       pt.GetCategory(),
		})

		events = append(events, model.RawEvent{
			ID:           "plaid:" + pt.GetTransactionId(),
			CompanyID:    companyID,
			Source:       model.RailLedgerAPI,
			Kind:         kindForAmount(cents),
			ExternalID:   pt.GetTransactionId(),
			AccountRef:   pt.GetAccountId(),
			Counterparty: counterparty,
			CategoryHint: hint,
			OccurredAt:   occurredAt,
			Currency:     currency,
			RawPayload:   payload,
			AmountCents:  cents,
		})
	}

	return events
}

// plaidCents converts a Plaid amount to signed minor units. Plaid reports
// money leaving the account as positive, the opposite of the ledger
// convention, so the sign flips here.
func plaidCents(amount float64) int64 {
	return -int64(math.Round(amount * 100))
}

// kindForAmount classifies by direction: inbound cash is a settlement so
// cross-rail reports of the same transfer collapse, outbound is a payment.
func kindForAmount(cents int64) model.EventKind {
	if cents > 0 {
		return model.KindSettlement
	}
	return model.KindPayment
}
