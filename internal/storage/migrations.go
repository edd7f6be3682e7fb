package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial reconciliation schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS raw_events (
					id TEXT PRIMARY KEY,
					company_id TEXT NOT NULL,
					source TEXT NOT NULL,
					kind TEXT NOT NULL,
					external_id TEXT,
					occurred_at DATETIME NOT NULL,
					amount_cents INTEGER NOT NULL,
					currency TEXT NOT NULL,
					account_ref TEXT,
					counterparty TEXT,
					category_hint TEXT,
					parent_external_id TEXT,
					raw_payload TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_raw_events_company ON raw_events(company_id)`,
				`CREATE INDEX idx_raw_events_external ON raw_events(source, external_id)`,

				// The UNIQUE constraint is the synchronization point for
				// concurrent rails resolving the same fingerprint.
				`CREATE TABLE IF NOT EXISTS identities (
					id TEXT PRIMARY KEY,
					company_id TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					canonical_kind TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(company_id, fingerprint)
				)`,

				`CREATE TABLE IF NOT EXISTS identity_links (
					identity_id TEXT NOT NULL,
					raw_event_id TEXT NOT NULL,
					reason TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(identity_id, raw_event_id),
					FOREIGN KEY (identity_id) REFERENCES identities(id),
					FOREIGN KEY (raw_event_id) REFERENCES raw_events(id)
				)`,
				`CREATE INDEX idx_identity_links_identity ON identity_links(identity_id)`,

				`CREATE TABLE IF NOT EXISTS identity_edges (
					from_identity TEXT NOT NULL,
					to_identity TEXT NOT NULL,
					kind TEXT NOT NULL,
					weight REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (from_identity, to_identity, kind),
					CHECK (from_identity <> to_identity)
				)`,

				// seq is the durable ingest order; per-identity causal order
				// follows from it. No UPDATE or DELETE ever touches this table.
				`CREATE TABLE IF NOT EXISTS ledger_entries (
					seq INTEGER PRIMARY KEY AUTOINCREMENT,
					id TEXT UNIQUE NOT NULL,
					company_id TEXT NOT NULL,
					identity_id TEXT NOT NULL,
					source_event_id TEXT NOT NULL,
					posted_at DATETIME NOT NULL,
					direction TEXT NOT NULL,
					amount_cents INTEGER NOT NULL,
					currency TEXT NOT NULL,
					description TEXT,
					account_ref TEXT,
					provenance TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					UNIQUE(identity_id, source_event_id),
					FOREIGN KEY (identity_id) REFERENCES identities(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add classification and exception tables",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS classifications (
					ledger_entry_id TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					account TEXT,
					policy TEXT NOT NULL,
					status TEXT NOT NULL,
					rule_name TEXT,
					notes TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					classified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (ledger_entry_id) REFERENCES ledger_entries(id)
				)`,
				`CREATE INDEX idx_classifications_category ON classifications(category)`,

				`CREATE TABLE IF NOT EXISTS exceptions (
					id TEXT PRIMARY KEY,
					company_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					reason TEXT NOT NULL,
					ledger_entry_id TEXT,
					raw_event_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_exceptions_company ON exceptions(company_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Optimize ledger query indexes",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_ledger_entries_company_date ON ledger_entries(company_id, posted_at)`,
				`CREATE INDEX IF NOT EXISTS idx_ledger_entries_identity ON ledger_entries(identity_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Enforce single initial ledger projection per identity",
		Up: func(tx *sql.Tx) error {
			// An identity's cash fact is projected once; redelivery under a
			// fresh delivery id and cross-rail reports of the same settlement
			// must not append again. Corrections carry provenance.corrects and
			// stay outside the index.
			query := `CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_initial_projection
				ON ledger_entries(identity_id)
				WHERE json_extract(provenance, '$.corrects') IS NULL`
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("failed to execute query '%s': %w", query, err)
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
