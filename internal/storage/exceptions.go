package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finfold/reckon/internal/model"
)

// SaveException records an advisory anomaly for human review.
func (s *SQLiteStorage) SaveException(ctx context.Context, exc *model.Exception) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateException(exc); err != nil {
		return err
	}

	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}
	if exc.CreatedAt.IsZero() {
		exc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exceptions (id, company_id, kind, reason, ledger_entry_id, raw_event_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		exc.ID,
		exc.CompanyID,
		string(exc.Kind),
		exc.Reason,
		exc.LedgerEntryID,
		exc.RawEventID,
		exc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}

	return nil
}

// ListExceptions retrieves exceptions for a company, newest first.
func (s *SQLiteStorage) ListExceptions(ctx context.Context, companyID string) ([]model.Exception, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, kind, reason, ledger_entry_id, raw_event_id, created_at
		FROM exceptions
		WHERE company_id = ?
		ORDER BY created_at DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var exceptions []model.Exception
	for rows.Next() {
		var exc model.Exception
		var kind string

		if err := rows.Scan(
			&exc.ID,
			&exc.CompanyID,
			&kind,
			&exc.Reason,
			&exc.LedgerEntryID,
			&exc.RawEventID,
			&exc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}

		exc.Kind = model.ExceptionKind(kind)
		exceptions = append(exceptions, exc)
	}

	return exceptions, rows.Err()
}
