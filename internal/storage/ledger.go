package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
	"github.com/finfold/reckon/internal/service"
)

// AppendLedgerEntry appends a canonical cash-flow fact. The ledger is
// append-only: corrections are new entries whose provenance references the
// original via Provenance.Corrects. An identity's cash fact is projected at
// most once: a second non-correction entry for the same identity is reported
// as common.ErrDuplicateEntry regardless of which raw event carried it, so
// redelivery under a fresh delivery id and cross-rail reports of the same
// settlement add link evidence without double-counting cash. On success the
// entry's ID and Seq are populated.
func (s *SQLiteStorage) AppendLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	provenance, err := json.Marshal(entry.Provenance)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_entries (
			id, company_id, identity_id, source_event_id, posted_at,
			direction, amount_cents, currency, description, account_ref,
			provenance, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.CompanyID,
		entry.IdentityID,
		entry.Provenance.SourceEventID,
		entry.PostedAt,
		string(entry.Direction),
		entry.AmountCents,
		entry.Currency,
		entry.Description,
		entry.AccountRef,
		string(provenance),
		entry.Confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrDuplicateEntry
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get entry sequence: %w", err)
	}
	entry.Seq = seq

	return nil
}

// GetLedgerEntries retrieves entries for a company, ordered by durable ingest
// sequence so provenance chains stay coherent.
func (s *SQLiteStorage) GetLedgerEntries(ctx context.Context, companyID string, filter service.LedgerFilter) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT seq, id, company_id, identity_id, posted_at, direction,
		       amount_cents, currency, description, account_ref, provenance, confidence
		FROM ledger_entries
		WHERE company_id = ?`)
	args := []any{companyID}

	if filter.Start != nil {
		query.WriteString(" AND posted_at >= ?")
		args = append(args, *filter.Start)
	}
	if filter.End != nil {
		query.WriteString(" AND posted_at <= ?")
		args = append(args, *filter.End)
	}
	if filter.Direction != "" {
		query.WriteString(" AND direction = ?")
		args = append(args, string(filter.Direction))
	}
	query.WriteString(" ORDER BY seq")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	return s.queryLedgerEntries(ctx, query.String(), args...)
}

// GetLedgerEntriesByIdentity retrieves the causal entry chain for one
// identity.
func (s *SQLiteStorage) GetLedgerEntriesByIdentity(ctx context.Context, identityID string) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identityID, "identityID"); err != nil {
		return nil, err
	}

	return s.queryLedgerEntries(ctx, `
		SELECT seq, id, company_id, identity_id, posted_at, direction,
		       amount_cents, currency, description, account_ref, provenance, confidence
		FROM ledger_entries
		WHERE identity_id = ?
		ORDER BY seq
	`, identityID)
}

func (s *SQLiteStorage) queryLedgerEntries(ctx context.Context, query string, args ...any) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var entry model.LedgerEntry
		var direction, provenance string

		if err := rows.Scan(
			&entry.Seq,
			&entry.ID,
			&entry.CompanyID,
			&entry.IdentityID,
			&entry.PostedAt,
			&direction,
			&entry.AmountCents,
			&entry.Currency,
			&entry.Description,
			&entry.AccountRef,
			&provenance,
			&entry.Confidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		entry.Direction = model.Direction(direction)
		if err := json.Unmarshal([]byte(provenance), &entry.Provenance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provenance for entry %s: %w", entry.ID, err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
