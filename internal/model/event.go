// Package model defines the core domain models used throughout the engine.
package model

import (
	"encoding/json"
	"time"
)

// EventKind identifies the economic shape of a raw event as reported by a rail.
type EventKind string

// Event kind constants.
const (
	KindSettlement EventKind = "SETTLEMENT"
	KindPayout     EventKind = "PAYOUT"
	KindCharge     EventKind = "CHARGE"
	KindFee        EventKind = "FEE"
	KindRefund     EventKind = "REFUND"
	KindInvoice    EventKind = "INVOICE"
	KindPayment    EventKind = "PAYMENT"
	KindUnknown    EventKind = "UNKNOWN"
)

// HasStableExternalID reports whether events of this kind carry a rail-native
// identifier that is stable across redeliveries.
func (k EventKind) HasStableExternalID() bool {
	switch k {
	case KindPayout, KindCharge, KindFee, KindRefund, KindInvoice, KindPayment:
		return true
	case KindSettlement, KindUnknown:
		return false
	}
	return false
}

// Rail identifies the external source system that reported an event.
type Rail string

// Known rails. The set is open; adapters may introduce new ones.
const (
	RailBankFeed      Rail = "BANK_FEED"
	RailCardProcessor Rail = "CARD_PROCESSOR"
	RailLedgerAPI     Rail = "LEDGER_API"
)

// RawEvent is an identity-less financial event exactly as a rail reported it.
// Raw events are immutable once stored and are the source of truth for
// reprocessing.
type RawEvent struct {
	OccurredAt       time.Time
	ID               string
	CompanyID        string
	Source           Rail
	Kind             EventKind
	ExternalID       string // rail-native id; may be empty for settlements
	AccountRef       string
	Counterparty     string
	CategoryHint     string
	ParentExternalID string
	Currency         string
	RawPayload       json.RawMessage // opaque original payload, kept for audit
	AmountCents      int64           // signed minor units; negative = cash out
}
