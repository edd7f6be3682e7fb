// Package service defines the interfaces between the engine and its
// collaborators.
package service

import (
	"context"
	"time"

	"github.com/finfold/reckon/internal/model"
)

// LedgerFilter defines filtering options for ledger entry queries.
type LedgerFilter struct {
	Start     *time.Time
	End       *time.Time
	Direction model.Direction // empty matches both directions
	Limit     int
}

// Storage defines the contract for the persistence layer. One production
// implementation (SQLite) and one in-memory implementation exist; callers
// choose explicitly at construction time.
type Storage interface {
	RawEventStore
	IdentityStore
	EvidenceStore
	LedgerStore
	ClassificationStore
	ExceptionStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RawEventStore persists rail-reported events verbatim.
type RawEventStore interface {
	SaveRawEvents(ctx context.Context, events []model.RawEvent) error
	GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error)
}

// IdentityStore is the deduplication authority. ResolveOrCreateIdentity must
// guarantee at most one identity per (company, fingerprint) under concurrent
// callers.
type IdentityStore interface {
	ResolveOrCreateIdentity(ctx context.Context, companyID string, kind model.EventKind, fingerprint string) (string, error)
	GetIdentity(ctx context.Context, id string) (*model.Identity, error)
	GetIdentityByFingerprint(ctx context.Context, companyID, fingerprint string) (*model.Identity, error)
}

// EvidenceStore records links from raw events to identities and weighted
// edges between identities.
type EvidenceStore interface {
	LinkRawEvent(ctx context.Context, link model.IdentityLink) error
	GetLinksByIdentity(ctx context.Context, identityID string) ([]model.IdentityLink, error)
	AddIdentityEdge(ctx context.Context, edge model.IdentityEdge) error
	GetEdgesFrom(ctx context.Context, identityID string) ([]model.IdentityEdge, error)
}

// LedgerStore is append-only: no update or delete operations exist by design.
type LedgerStore interface {
	AppendLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error
	GetLedgerEntries(ctx context.Context, companyID string, filter LedgerFilter) ([]model.LedgerEntry, error)
	GetLedgerEntriesByIdentity(ctx context.Context, identityID string) ([]model.LedgerEntry, error)
}

// ClassificationStore persists classification outcomes for downstream
// consumers.
type ClassificationStore interface {
	SaveClassification(ctx context.Context, c *model.Classification) error
	GetClassification(ctx context.Context, ledgerEntryID string) (*model.Classification, error)
	GetUnclassifiedOutflows(ctx context.Context, companyID string) ([]model.LedgerEntry, error)
}

// ExceptionStore records advisory anomalies for human review.
type ExceptionStore interface {
	SaveException(ctx context.Context, exc *model.Exception) error
	ListExceptions(ctx context.Context, companyID string) ([]model.Exception, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// IngestStats shows the results of an ingestion run.
type IngestStats struct {
	Duration     time.Duration
	TotalEvents  int
	Ingested     int
	Duplicates   int
	DeadLettered int
	Edges        int
}

// ClassifyStats shows the results of a classification run.
type ClassifyStats struct {
	Duration     time.Duration
	TotalEntries int
	AutoPosted   int
	NeedsReview  int
	Unmatched    int
	Exceptions   int
}
