package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finfold/reckon/internal/buckets"
	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/rules"
	"github.com/finfold/reckon/internal/service"
	"github.com/finfold/reckon/internal/timing"
)

// ClassifyRun classifies every outflow entry that has no classification yet,
// applies the threshold gate, runs the timing guardrail on the results and
// persists any exceptions. Re-running after a ruleset change only touches
// entries that were never classified.
func (e *Engine) ClassifyRun(ctx context.Context, companyID string, rs *rules.Ruleset) (service.ClassifyStats, error) {
	start := time.Now()
	var stats service.ClassifyStats

	classifier, err := rules.NewClassifier(rs)
	if err != nil {
		return stats, fmt.Errorf("building classifier: %w", err)
	}
	guardrail := timing.NewGuardrail(rs.Cadences)

	entries, err := e.storage.GetUnclassifiedOutflows(ctx, companyID)
	if err != nil {
		return stats, fmt.Errorf("loading unclassified entries: %w", err)
	}
	stats.TotalEntries = len(entries)

	for _, entry := range entries {
		result, err := e.classifyEntry(ctx, classifier, entry)
		if err != nil {
			return stats, err
		}

		if result.Status == model.StatusAutoPosted {
			stats.AutoPosted++
		} else {
			stats.NeedsReview++
		}
		if result.Category == model.CategoryUnknown {
			stats.Unmatched++
		}

		if exc := guardrail.Check(entry, result.Category); exc != nil {
			if err := e.storage.SaveException(ctx, exc); err != nil {
				return stats, fmt.Errorf("saving exception: %w", err)
			}
			stats.Exceptions++
		}
	}

	stats.Duration = time.Since(start)
	e.logger.Info("Classification complete",
		"company_id", companyID,
		"entries", stats.TotalEntries,
		"auto_posted", stats.AutoPosted,
		"needs_review", stats.NeedsReview,
		"unmatched", stats.Unmatched,
		"exceptions", stats.Exceptions,
		"duration", stats.Duration)
	return stats, nil
}

// classifyEntry classifies a single entry and persists the outcome.
func (e *Engine) classifyEntry(ctx context.Context, classifier *rules.Classifier, entry model.LedgerEntry) (rules.Result, error) {
	kind := model.KindUnknown
	if identity, err := e.storage.GetIdentity(ctx, entry.IdentityID); err == nil {
		kind = identity.CanonicalKind
	}

	result := classifier.Classify(rules.Input{
		Description: entry.Description,
		Kind:        kind,
		Account:     entry.AccountRef,
	})

	c := &model.Classification{
		ClassifiedAt:  time.Now().UTC(),
		LedgerEntryID: entry.ID,
		Category:      result.Category,
		Account:       result.Account,
		Policy:        result.Policy,
		Status:        result.Status,
		RuleName:      result.RuleName,
		Notes:         result.Note,
		Confidence:    result.Confidence,
	}
	if err := e.storage.SaveClassification(ctx, c); err != nil {
		return result, fmt.Errorf("saving classification for entry %s: %w", entry.ID, err)
	}
	return result, nil
}

// BucketReport aggregates classified outflow entries into payment-urgency
// buckets, per currency. Entries without a classification land in OTHER so
// the report always accounts for every outflow in range.
func (e *Engine) BucketReport(ctx context.Context, companyID string, filter service.LedgerFilter) (buckets.Report, error) {
	filter.Direction = model.DirectionOutflow

	entries, err := e.storage.GetLedgerEntries(ctx, companyID, filter)
	if err != nil {
		return buckets.Report{}, fmt.Errorf("loading ledger entries: %w", err)
	}

	items := make([]buckets.Item, 0, len(entries))
	for _, entry := range entries {
		var policy model.Policy
		c, err := e.storage.GetClassification(ctx, entry.ID)
		switch {
		case err == nil:
			policy = c.Policy
		case errors.Is(err, common.ErrNotFound):
			// aggregated as OTHER
		default:
			return buckets.Report{}, fmt.Errorf("loading classification for entry %s: %w", entry.ID, err)
		}
		items = append(items, buckets.Item{Entry: entry, Policy: policy})
	}

	return buckets.Aggregate(items), nil
}
