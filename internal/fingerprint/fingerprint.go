// Package fingerprint derives the deterministic deduplication key for raw
// events. The hash is the load-bearing correctness property of the whole
// pipeline: identical economic occurrences must always produce identical
// fingerprints, across processes and across rails.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/finfold/reckon/internal/model"
)

// Fingerprint carries the dedup hash for a raw event plus the canonical kind
// to assign if the event ends up creating a new identity.
type Fingerprint struct {
	Hash          string
	CanonicalKind model.EventKind
}

// Compute maps a raw event to its content fingerprint. Pure function; no side
// effects.
//
// Settlements frequently lack a stable rail-native identifier, so their
// identity is inferred from an economically meaningful tuple. This
// intentionally collapses two settlement reports of the same real-world
// transfer (e.g. from a bank feed and a card network) into one identity.
// Kinds with stable external ids hash (kind, rail, external_id), which is the
// idempotency guarantee against at-least-once redelivery. Anything else falls
// back to an explicitly marked UNKNOWN identity rather than being dropped.
func Compute(ev model.RawEvent) Fingerprint {
	switch {
	case ev.Kind == model.KindSettlement:
		return Fingerprint{
			Hash: digest(
				string(model.KindSettlement),
				ev.AccountRef,
				strconv.FormatInt(absCents(ev.AmountCents), 10),
				ev.OccurredAt.UTC().Format("2006-01-02"),
				NormalizeCounterparty(ev.Counterparty),
			),
			CanonicalKind: model.KindSettlement,
		}
	case ev.Kind.HasStableExternalID() && ev.ExternalID != "":
		return Fingerprint{
			Hash:          digest(string(ev.Kind), string(ev.Source), ev.ExternalID),
			CanonicalKind: ev.Kind,
		}
	}

	return Fingerprint{
		Hash:          digest(string(model.KindUnknown), string(ev.Source), ev.ExternalID),
		CanonicalKind: model.KindUnknown,
	}
}

// NormalizeCounterparty canonicalizes a counterparty or merchant string for
// hashing: trimmed, inner whitespace collapsed, uppercased.
func NormalizeCounterparty(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%x", sum)
}

func absCents(c int64) int64 {
	if c < 0 {
		return -c
	}
	return c
}
