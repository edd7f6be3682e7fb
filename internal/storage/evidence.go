package storage

import (
	"context"
	"fmt"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
)

// LinkRawEvent records evidence that a raw event resolved to an identity.
// Reprocessing the same raw event is recognized by (identity_id, raw_event_id)
// and treated as a no-op rather than creating a duplicate link; distinct raw
// events linking to the same identity are all retained as independent
// multi-rail confirmation.
func (s *SQLiteStorage) LinkRawEvent(ctx context.Context, link model.IdentityLink) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLink(&link); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO identity_links (identity_id, raw_event_id, reason, confidence)
		VALUES (?, ?, ?, ?)
	`, link.IdentityID, link.RawEventID, link.Reason, link.Confidence)
	if err != nil {
		return fmt.Errorf("failed to link raw event %s: %w", link.RawEventID, err)
	}

	return nil
}

// GetLinksByIdentity retrieves all evidence links for an identity.
func (s *SQLiteStorage) GetLinksByIdentity(ctx context.Context, identityID string) ([]model.IdentityLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identityID, "identityID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_id, raw_event_id, reason, confidence, created_at
		FROM identity_links
		WHERE identity_id = ?
		ORDER BY rowid
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.IdentityLink
	for rows.Next() {
		var link model.IdentityLink
		if err := rows.Scan(
			&link.IdentityID,
			&link.RawEventID,
			&link.Reason,
			&link.Confidence,
			&link.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// AddIdentityEdge records a directed, weighted relation between two
// identities. Self-loops are rejected. Re-adding an identical (from, to, kind)
// edge keeps the greater weight, so repeated ingestion never grows the edge
// set unboundedly.
func (s *SQLiteStorage) AddIdentityEdge(ctx context.Context, edge model.IdentityEdge) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEdge(&edge); err != nil {
		return err
	}
	if edge.FromIdentity == edge.ToIdentity {
		return fmt.Errorf("%w: %s", common.ErrSelfLoopEdge, edge.FromIdentity)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_edges (from_identity, to_identity, kind, weight)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_identity, to_identity, kind) DO UPDATE SET
			weight = MAX(weight, excluded.weight)
	`, edge.FromIdentity, edge.ToIdentity, edge.Kind, edge.Weight)
	if err != nil {
		return fmt.Errorf("failed to add identity edge: %w", err)
	}

	return nil
}

// GetEdgesFrom retrieves outgoing edges for an identity.
func (s *SQLiteStorage) GetEdgesFrom(ctx context.Context, identityID string) ([]model.IdentityEdge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(identityID, "identityID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT from_identity, to_identity, kind, weight
		FROM identity_edges
		WHERE from_identity = ?
		ORDER BY to_identity, kind
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []model.IdentityEdge
	for rows.Next() {
		var edge model.IdentityEdge
		if err := rows.Scan(
			&edge.FromIdentity,
			&edge.ToIdentity,
			&edge.Kind,
			&edge.Weight,
		); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}
