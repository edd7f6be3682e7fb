package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
)

// SaveRawEvents persists rail-reported events verbatim. Raw events are
// immutable; re-saving an event with a known id is a no-op, which absorbs
// at-least-once redelivery from the rails.
func (s *SQLiteStorage) SaveRawEvents(ctx context.Context, events []model.RawEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRawEvents(events); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO raw_events (
			id, company_id, source, kind, external_id, occurred_at,
			amount_cents, currency, account_ref, counterparty,
			category_hint, parent_external_id, raw_payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ev := range events {
		_, err = stmt.ExecContext(ctx,
			ev.ID,
			ev.CompanyID,
			string(ev.Source),
			string(ev.Kind),
			ev.ExternalID,
			ev.OccurredAt,
			ev.AmountCents,
			ev.Currency,
			ev.AccountRef,
			ev.Counterparty,
			ev.CategoryHint,
			ev.ParentExternalID,
			string(ev.RawPayload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert raw event %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

// GetRawEvent retrieves a raw event by id.
func (s *SQLiteStorage) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var ev model.RawEvent
	var source, kind, payload string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, source, kind, external_id, occurred_at,
		       amount_cents, currency, account_ref, counterparty,
		       category_hint, parent_external_id, raw_payload
		FROM raw_events
		WHERE id = ?
	`, id).Scan(
		&ev.ID,
		&ev.CompanyID,
		&source,
		&kind,
		&ev.ExternalID,
		&ev.OccurredAt,
		&ev.AmountCents,
		&ev.Currency,
		&ev.AccountRef,
		&ev.Counterparty,
		&ev.CategoryHint,
		&ev.ParentExternalID,
		&payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw event: %w", err)
	}

	ev.Source = model.Rail(source)
	ev.Kind = model.EventKind(kind)
	if payload != "" {
		ev.RawPayload = []byte(payload)
	}

	return &ev, nil
}
