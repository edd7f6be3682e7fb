package model

import "time"

// Direction indicates whether a ledger entry moves cash in or out.
type Direction string

// Direction constants.
const (
	DirectionInflow  Direction = "INFLOW"
	DirectionOutflow Direction = "OUTFLOW"
)

// Provenance records the raw events and adapters that contributed to a ledger
// entry, so every figure shown downstream can be traced back to its sources.
type Provenance struct {
	SourceEventID string   `json:"source_event_id"`
	Rail          string   `json:"rail"`
	Adapter       string   `json:"adapter,omitempty"`
	Corrects      string   `json:"corrects,omitempty"` // id of the entry this one corrects
	EvidenceIDs   []string `json:"evidence_ids,omitempty"`
}

// LedgerEntry is an append-only canonical cash-flow fact. Entries are never
// updated or deleted; corrections are new entries whose provenance references
// the original. Seq is assigned by the storage layer at durable insert and
// orders entries belonging to the same identity causally.
type LedgerEntry struct {
	PostedAt    time.Time
	ID          string
	CompanyID   string
	IdentityID  string
	Direction   Direction
	Currency    string
	Description string
	AccountRef  string
	Provenance  Provenance
	AmountCents int64 // signed minor units; negative = outflow
	Seq         int64
	Confidence  float64
}

// DirectionForAmount derives the entry direction from a signed cent amount.
func DirectionForAmount(cents int64) Direction {
	if cents < 0 {
		return DirectionOutflow
	}
	return DirectionInflow
}
