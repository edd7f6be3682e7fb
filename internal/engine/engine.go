// Package engine orchestrates the ingestion and classification pipelines:
// raw events in, deduplicated identities and append-only ledger entries out,
// classification and timing checks layered on top.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/fingerprint"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/service"
	"github.com/finfold/reckon/internal/storage"
)

// Link confidences by how the event was matched to its identity.
const (
	confidenceExactID         = 1.0
	confidenceFuzzySettlement = 0.75
	confidenceUnknown         = 0.5
)

// DeadLetter captures an event the pipeline refused, with enough context to
// fix and resubmit it.
type DeadLetter struct {
	Event model.RawEvent
	Err   string
}

// IngestResult is the outcome of one ingestion run.
type IngestResult struct {
	Stats       service.IngestStats
	DeadLetters []DeadLetter
}

// Engine coordinates storage, fingerprinting and classification.
type Engine struct {
	storage service.Storage
	logger  *slog.Logger
	retry   service.RetryOptions
}

// New creates an engine on top of the given storage.
func New(store service.Storage, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage: store,
		logger:  logger,
		retry:   service.RetryOptions{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond},
	}
}

// Ingest runs the full pipeline over a batch of raw events. Events are
// processed per rail in parallel; only the identity resolver coordinates
// across workers, through the storage uniqueness constraint. A failing event
// is dead-lettered and the rest of its batch continues.
func (e *Engine) Ingest(ctx context.Context, companyID string, events []model.RawEvent) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{}
	result.Stats.TotalEvents = len(events)

	byRail := make(map[model.Rail][]model.RawEvent)
	for _, ev := range events {
		byRail[ev.Source] = append(byRail[ev.Source], ev)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for rail, batch := range byRail {
		g.Go(func() error {
			for _, ev := range batch {
				outcome, err := e.processEvent(gctx, companyID, ev)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					e.logger.Warn("Event dead-lettered",
						"rail", rail,
						"event_id", ev.ID,
						"error", err)
					mu.Lock()
					result.Stats.DeadLettered++
					result.DeadLetters = append(result.DeadLetters, DeadLetter{Event: ev, Err: err.Error()})
					mu.Unlock()
					continue
				}

				mu.Lock()
				if outcome.duplicate {
					result.Stats.Duplicates++
				} else {
					result.Stats.Ingested++
				}
				result.Stats.Edges += outcome.edges
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Stats.Duration = time.Since(start)
	e.logger.Info("Ingestion complete",
		"company_id", companyID,
		"total", result.Stats.TotalEvents,
		"ingested", result.Stats.Ingested,
		"duplicates", result.Stats.Duplicates,
		"dead_lettered", result.Stats.DeadLettered,
		"edges", result.Stats.Edges,
		"duration", result.Stats.Duration)
	return result, nil
}

type eventOutcome struct {
	duplicate bool
	edges     int
}

// processEvent takes one event through store, fingerprint, identity, link,
// ledger projection and optional settlement edge.
func (e *Engine) processEvent(ctx context.Context, companyID string, ev model.RawEvent) (eventOutcome, error) {
	var out eventOutcome

	if ev.CompanyID == "" {
		ev.CompanyID = companyID
	}
	if ev.CompanyID != companyID {
		return out, fmt.Errorf("%w: event belongs to company %q, run is for %q",
			common.ErrMalformedEvent, ev.CompanyID, companyID)
	}
	if err := storage.ValidateRawEvent(&ev); err != nil {
		return out, fmt.Errorf("%w: %v", common.ErrMalformedEvent, err)
	}

	if err := e.storage.SaveRawEvents(ctx, []model.RawEvent{ev}); err != nil {
		return out, fmt.Errorf("saving raw event: %w", err)
	}

	fp := fingerprint.Compute(ev)

	var identityID string
	err := common.WithRetry(ctx, func() error {
		var resolveErr error
		identityID, resolveErr = e.storage.ResolveOrCreateIdentity(ctx, companyID, fp.CanonicalKind, fp.Hash)
		if resolveErr != nil && !common.IsRetryable(resolveErr) {
			return &common.RetryableError{Err: resolveErr, Retryable: false}
		}
		return resolveErr
	}, e.retry)
	if err != nil {
		return out, fmt.Errorf("resolving identity: %w", err)
	}

	reason, confidence := linkEvidence(fp.CanonicalKind)
	link := model.IdentityLink{
		IdentityID: identityID,
		RawEventID: ev.ID,
		Reason:     reason,
		Confidence: confidence,
	}
	if err := e.storage.LinkRawEvent(ctx, link); err != nil {
		return out, fmt.Errorf("linking evidence: %w", err)
	}

	entry := &model.LedgerEntry{
		PostedAt:    ev.OccurredAt,
		CompanyID:   companyID,
		IdentityID:  identityID,
		Direction:   model.DirectionForAmount(ev.AmountCents),
		Currency:    ev.Currency,
		Description: entryDescription(ev),
		AccountRef:  ev.AccountRef,
		Provenance:  model.Provenance{SourceEventID: ev.ID, Rail: string(ev.Source)},
		AmountCents: ev.AmountCents,
		Confidence:  confidence,
	}
	switch err := e.storage.AppendLedgerEntry(ctx, entry); {
	case errors.Is(err, common.ErrDuplicateEntry):
		out.duplicate = true
	case err != nil:
		return out, fmt.Errorf("appending ledger entry: %w", err)
	}

	if ev.ParentExternalID != "" {
		added, err := e.linkSettlement(ctx, companyID, ev, identityID)
		if err != nil {
			// Edges are enrichment, not correctness; the entry already posted.
			e.logger.Warn("Settlement edge skipped", "event_id", ev.ID, "error", err)
		} else if added {
			out.edges++
		}
	}

	return out, nil
}

// linkSettlement records a SETTLES edge from the payout an event references
// to the event's own identity. A missing parent is not an error; the payout
// may simply not have arrived yet.
func (e *Engine) linkSettlement(ctx context.Context, companyID string, ev model.RawEvent, identityID string) (bool, error) {
	parentFP := fingerprint.Compute(model.RawEvent{
		Kind:       model.KindPayout,
		Source:     ev.Source,
		ExternalID: ev.ParentExternalID,
	})

	parent, err := e.storage.GetIdentityByFingerprint(ctx, companyID, parentFP.Hash)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	edge := model.IdentityEdge{
		FromIdentity: parent.ID,
		ToIdentity:   identityID,
		Kind:         model.EdgeKindSettles,
		Weight:       confidenceExactID,
	}
	if err := e.storage.AddIdentityEdge(ctx, edge); err != nil {
		return false, err
	}
	return true, nil
}

func linkEvidence(kind model.EventKind) (string, float64) {
	switch kind {
	case model.KindSettlement:
		return model.ReasonFuzzySettlementMatch, confidenceFuzzySettlement
	case model.KindUnknown:
		return model.ReasonUnknownKind, confidenceUnknown
	default:
		return model.ReasonExactIDMatch, confidenceExactID
	}
}

func entryDescription(ev model.RawEvent) string {
	if ev.Counterparty != "" {
		return ev.Counterparty
	}
	if ev.CategoryHint != "" {
		return ev.CategoryHint
	}
	return string(ev.Kind)
}
