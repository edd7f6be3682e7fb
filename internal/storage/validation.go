package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finfold/reckon/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrEmptySlice       = errors.New("slice cannot be empty")
	ErrInvalidRawEvent  = errors.New("invalid raw event")
	ErrInvalidLink      = errors.New("invalid identity link")
	ErrInvalidEdge      = errors.New("invalid identity edge")
	ErrInvalidEntry     = errors.New("invalid ledger entry")
	ErrInvalidException = errors.New("invalid exception")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRawEvents validates a slice of raw events.
func validateRawEvents(events []model.RawEvent) error {
	if events == nil {
		return fmt.Errorf("%w: events", ErrNilParameter)
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: events", ErrEmptySlice)
	}

	for i, ev := range events {
		if err := ValidateRawEvent(&ev); err != nil {
			return fmt.Errorf("event at index %d: %w", i, err)
		}
	}
	return nil
}

// ValidateRawEvent validates a single raw event. Exported so the ingestion
// pipeline can reject malformed events before touching storage.
func ValidateRawEvent(ev *model.RawEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if ev.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRawEvent)
	}
	if ev.CompanyID == "" {
		return fmt.Errorf("%w: missing company ID", ErrInvalidRawEvent)
	}
	if ev.Source == "" {
		return fmt.Errorf("%w: missing source rail", ErrInvalidRawEvent)
	}
	if ev.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidRawEvent)
	}
	if ev.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidRawEvent)
	}
	return nil
}

// validateLink validates an identity link.
func validateLink(link *model.IdentityLink) error {
	if link == nil {
		return fmt.Errorf("%w: link", ErrNilParameter)
	}
	if link.IdentityID == "" {
		return fmt.Errorf("%w: missing identity ID", ErrInvalidLink)
	}
	if link.RawEventID == "" {
		return fmt.Errorf("%w: missing raw event ID", ErrInvalidLink)
	}
	if link.Reason == "" {
		return fmt.Errorf("%w: missing reason", ErrInvalidLink)
	}
	if link.Confidence < 0 || link.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidLink)
	}
	return nil
}

// validateEdge validates an identity edge.
func validateEdge(edge *model.IdentityEdge) error {
	if edge == nil {
		return fmt.Errorf("%w: edge", ErrNilParameter)
	}
	if edge.FromIdentity == "" || edge.ToIdentity == "" {
		return fmt.Errorf("%w: missing endpoint", ErrInvalidEdge)
	}
	if edge.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEdge)
	}
	if edge.Weight < 0 || edge.Weight > 1 {
		return fmt.Errorf("%w: weight must be between 0 and 1", ErrInvalidEdge)
	}
	return nil
}

// validateLedgerEntry validates a ledger entry before append.
func validateLedgerEntry(entry *model.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.CompanyID == "" {
		return fmt.Errorf("%w: missing company ID", ErrInvalidEntry)
	}
	if entry.IdentityID == "" {
		return fmt.Errorf("%w: missing identity ID", ErrInvalidEntry)
	}
	if entry.PostedAt.IsZero() {
		return fmt.Errorf("%w: missing posted_at", ErrInvalidEntry)
	}
	if entry.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidEntry)
	}
	if entry.Direction != model.DirectionInflow && entry.Direction != model.DirectionOutflow {
		return fmt.Errorf("%w: invalid direction %q", ErrInvalidEntry, entry.Direction)
	}
	if entry.Provenance.SourceEventID == "" {
		return fmt.Errorf("%w: provenance missing source event", ErrInvalidEntry)
	}
	if entry.Confidence < 0 || entry.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidEntry)
	}
	return nil
}

// validateException validates an exception record.
func validateException(exc *model.Exception) error {
	if exc == nil {
		return fmt.Errorf("%w: exception", ErrNilParameter)
	}
	if exc.CompanyID == "" {
		return fmt.Errorf("%w: missing company ID", ErrInvalidException)
	}
	if exc.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidException)
	}
	if exc.Reason == "" {
		return fmt.Errorf("%w: missing reason", ErrInvalidException)
	}
	return nil
}
