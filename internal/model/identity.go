package model

import "time"

// Identity is the canonical, deduplicated representation of one real-world
// financial occurrence. At most one identity exists per (company, fingerprint),
// no matter how many raw events resolve to it. Identities are created once and
// never mutated.
type Identity struct {
	CreatedAt     time.Time
	ID            string
	CompanyID     string
	Fingerprint   string
	CanonicalKind EventKind
}

// Link reasons recorded as evidence on identity links.
const (
	ReasonExactIDMatch         = "exact-id-match"
	ReasonFuzzySettlementMatch = "fuzzy-settlement-match"
	ReasonUnknownKind          = "unknown-kind"
)

// IdentityLink is an evidence edge connecting a raw event to the identity it
// resolved to. Many raw events may link to one identity (multi-rail
// confirmation); a raw event links to exactly one identity.
type IdentityLink struct {
	CreatedAt  time.Time
	IdentityID string
	RawEventID string
	Reason     string
	Confidence float64
}

// EdgeKindSettles marks an edge from a settling identity (e.g. a payout) to
// the identity it settles (e.g. a charge).
const EdgeKindSettles = "SETTLES"

// IdentityEdge is a directed, weighted relation between two identities.
// Self-loops are rejected at the storage layer.
type IdentityEdge struct {
	FromIdentity string
	ToIdentity   string
	Kind         string
	Weight       float64
}
