package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
)

// SaveClassification persists the classification outcome for a ledger entry.
// Re-classifying an entry (e.g. after a ruleset update) replaces the previous
// outcome; the ledger entry itself is never touched.
func (s *SQLiteStorage) SaveClassification(ctx context.Context, c *model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: classification", ErrNilParameter)
	}
	if err := validateString(c.LedgerEntryID, "ledgerEntryID"); err != nil {
		return err
	}
	if err := validateString(c.Category, "category"); err != nil {
		return err
	}

	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classifications (
			ledger_entry_id, category, account, policy, status,
			rule_name, notes, confidence, classified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ledger_entry_id) DO UPDATE SET
			category = excluded.category,
			account = excluded.account,
			policy = excluded.policy,
			status = excluded.status,
			rule_name = excluded.rule_name,
			notes = excluded.notes,
			confidence = excluded.confidence,
			classified_at = excluded.classified_at
	`,
		c.LedgerEntryID,
		c.Category,
		c.Account,
		string(c.Policy),
		string(c.Status),
		c.RuleName,
		c.Notes,
		c.Confidence,
		c.ClassifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}

	return nil
}

// GetClassification retrieves the classification for a ledger entry.
func (s *SQLiteStorage) GetClassification(ctx context.Context, ledgerEntryID string) (*model.Classification, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ledgerEntryID, "ledgerEntryID"); err != nil {
		return nil, err
	}

	var c model.Classification
	var policy, status string

	err := s.db.QueryRowContext(ctx, `
		SELECT ledger_entry_id, category, account, policy, status,
		       rule_name, notes, confidence, classified_at
		FROM classifications
		WHERE ledger_entry_id = ?
	`, ledgerEntryID).Scan(
		&c.LedgerEntryID,
		&c.Category,
		&c.Account,
		&policy,
		&status,
		&c.RuleName,
		&c.Notes,
		&c.Confidence,
		&c.ClassifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	c.Policy = model.Policy(policy)
	c.Status = model.ClassificationStatus(status)
	return &c, nil
}

// GetUnclassifiedOutflows retrieves outflow entries that have no
// classification yet, in ingest order.
func (s *SQLiteStorage) GetUnclassifiedOutflows(ctx context.Context, companyID string) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}

	return s.queryLedgerEntries(ctx, `
		SELECT e.seq, e.id, e.company_id, e.identity_id, e.posted_at, e.direction,
		       e.amount_cents, e.currency, e.description, e.account_ref, e.provenance, e.confidence
		FROM ledger_entries e
		LEFT JOIN classifications c ON c.ledger_entry_id = e.id
		WHERE e.company_id = ? AND e.direction = ? AND c.ledger_entry_id IS NULL
		ORDER BY e.seq
	`, companyID, string(model.DirectionOutflow))
}
