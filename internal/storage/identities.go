package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
)

// maxResolveAttempts bounds the read-insert-reread loop when concurrent rails
// race to create the same identity.
const maxResolveAttempts = 3

// ResolveOrCreateIdentity looks up the identity for (companyID, fingerprint)
// and creates it if absent. This is the deduplication authority: the UNIQUE
// constraint on (company_id, fingerprint) guarantees at most one identity is
// ever created, no matter how many rails report the same economic event
// concurrently. A constraint violation on insert means another writer won the
// race, so we fall back to a read instead of retrying the insert blindly.
func (s *SQLiteStorage) ResolveOrCreateIdentity(ctx context.Context, companyID string, kind model.EventKind, fp string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return "", err
	}
	if err := validateString(fp, "fingerprint"); err != nil {
		return "", err
	}
	if kind == "" {
		kind = model.KindUnknown
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		id, err := s.lookupIdentityID(ctx, companyID, fp)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}

		newID := uuid.NewString()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO identities (id, company_id, fingerprint, canonical_kind)
			VALUES (?, ?, ?, ?)
		`, newID, companyID, fp, string(kind))
		if err == nil {
			return newID, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("failed to create identity: %w", err)
		}

		slog.Debug("Lost identity creation race, re-reading",
			"company_id", companyID,
			"attempt", attempt)
	}

	return "", fmt.Errorf("%w: fingerprint contention for company %s", common.ErrIdentityConflict, companyID)
}

func (s *SQLiteStorage) lookupIdentityID(ctx context.Context, companyID, fp string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM identities WHERE company_id = ? AND fingerprint = ?
	`, companyID, fp).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up identity: %w", err)
	}
	return id, nil
}

// GetIdentity retrieves an identity by id.
func (s *SQLiteStorage) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getIdentityWhere(ctx, "id = ?", id)
}

// GetIdentityByFingerprint retrieves an identity by its dedup key. Returns
// common.ErrNotFound when no raw event has resolved to this fingerprint yet.
func (s *SQLiteStorage) GetIdentityByFingerprint(ctx context.Context, companyID, fp string) (*model.Identity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(companyID, "companyID"); err != nil {
		return nil, err
	}
	if err := validateString(fp, "fingerprint"); err != nil {
		return nil, err
	}
	return s.getIdentityWhere(ctx, "company_id = ? AND fingerprint = ?", companyID, fp)
}

func (s *SQLiteStorage) getIdentityWhere(ctx context.Context, where string, args ...any) (*model.Identity, error) {
	var ident model.Identity
	var kind string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, fingerprint, canonical_kind, created_at
		FROM identities
		WHERE `+where, args...).Scan(
		&ident.ID,
		&ident.CompanyID,
		&ident.Fingerprint,
		&kind,
		&ident.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	ident.CanonicalKind = model.EventKind(kind)
	return &ident, nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
