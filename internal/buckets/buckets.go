// Package buckets rolls classified outflow entries up into payment-urgency
// totals. The output answers one question: of the money leaving, how much is
// must-pay, how much can slip, and how much is discretionary.
package buckets

import (
	"sort"

	"github.com/finfold/reckon/internal/model"
)

// Item pairs a ledger entry with the policy its classification assigned.
type Item struct {
	Entry  model.LedgerEntry
	Policy model.Policy
}

// Totals maps a policy bucket to its summed amount in cents. Amounts keep
// their ledger sign, so outflow buckets are negative.
type Totals map[model.Policy]int64

// Sum returns the total across all buckets.
func (t Totals) Sum() int64 {
	var sum int64
	for _, cents := range t {
		sum += cents
	}
	return sum
}

// Report is the result of one aggregation pass. Currencies are never mixed:
// each currency gets its own set of bucket totals.
type Report struct {
	ByCurrency map[string]Totals
	Aggregated int
	Skipped    int
}

// Currencies returns the currency codes present in the report, sorted.
func (r Report) Currencies() []string {
	codes := make([]string, 0, len(r.ByCurrency))
	for code := range r.ByCurrency {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Aggregate partitions classified outflow entries into policy buckets.
// Inflows are skipped; they are not obligations. An item with no recognized
// policy lands in OTHER so every aggregated cent is accounted for in exactly
// one bucket.
func Aggregate(items []Item) Report {
	report := Report{ByCurrency: make(map[string]Totals)}

	for _, item := range items {
		if item.Entry.Direction != model.DirectionOutflow {
			report.Skipped++
			continue
		}

		policy := item.Policy
		switch policy {
		case model.PolicyMustPay, model.PolicyCanDelay, model.PolicyDiscretionary:
		default:
			policy = model.PolicyOther
		}

		totals, ok := report.ByCurrency[item.Entry.Currency]
		if !ok {
			totals = make(Totals)
			report.ByCurrency[item.Entry.Currency] = totals
		}
		totals[policy] += item.Entry.AmountCents
		report.Aggregated++
	}

	return report
}
