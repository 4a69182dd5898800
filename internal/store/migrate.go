package store

import (
	"database/sql"
	"fmt"

	"github.com/chatlab/chatlab/internal/clerr"
)

// Migration is one versioned, idempotent schema upgrade step. Versions are
// append-only and strictly increasing; a migration never destroys data.
type Migration struct {
	Version     int
	Description string
	UserMessage string
	Apply       func(tx *sql.Tx) error
}

// MigrationInfo describes a pending migration for the boundary.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
	UserMessage string `json:"user_message"`
}

// migrations returns the full ordered migration list. Each step checks the
// current state before altering anything so partial re-runs are safe.
func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create base schema",
			UserMessage: "Initialize the chat corpus database",
			Apply: func(tx *sql.Tx) error {
				schema, err := schemaFS.ReadFile("schema.sql")
				if err != nil {
					return fmt.Errorf("read schema.sql: %w", err)
				}
				if _, err := tx.Exec(string(schema)); err != nil {
					return fmt.Errorf("execute schema.sql: %w", err)
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "add member roles column",
			UserMessage: "Record group roles (admin, owner) for members",
			Apply: func(tx *sql.Tx) error {
				return addColumn(tx, "member", "roles", `TEXT NOT NULL DEFAULT '[]'`)
			},
		},
		{
			Version:     3,
			Description: "add corpus partial flag and owner identity",
			UserMessage: "Track interrupted imports and the corpus owner",
			Apply: func(tx *sql.Tx) error {
				if err := addColumn(tx, "meta", "partial", `INTEGER NOT NULL DEFAULT 0`); err != nil {
					return err
				}
				return addColumn(tx, "meta", "owner_platform_id", `TEXT`)
			},
		},
	}
}

// addColumn adds a column if it does not already exist.
func addColumn(tx *sql.Tx, table, column, definition string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// columnExists checks PRAGMA table_info for the column. A missing table
// reports false, not an error, so migration 1 can create it.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// CurrentVersion returns the highest declared migration version.
func CurrentVersion() int {
	ms := migrations()
	return ms[len(ms)-1].Version
}

// SchemaVersion reads the stored schema version, creating the tracking
// table at version 0 on first open.
func (s *Store) SchemaVersion() (int, error) {
	if !s.readOnly {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_info (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("create schema_info: %w", err)
		}
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		if s.readOnly {
			return 0, nil
		}
		if _, err := s.db.Exec(`INSERT INTO schema_info (version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("init schema_info: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		if isSQLiteError(err, "no such table") {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending migrations inside a single transaction,
// advancing the stored version after each step.
func (s *Store) Migrate() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return clerr.Wrap(clerr.KindStoreIntegrity, "read schema version", err)
	}
	latest := CurrentVersion()
	if current > latest {
		return clerr.New(clerr.KindStoreIntegrity,
			"database schema version %d is newer than this build supports (%d)", current, latest)
	}
	if current == latest {
		return nil
	}

	err = s.withTx(func(tx *sql.Tx) error {
		for _, m := range migrations() {
			if m.Version <= current {
				continue
			}
			if err := m.Apply(tx); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if _, err := tx.Exec(`UPDATE schema_info SET version = ?`, m.Version); err != nil {
				return fmt.Errorf("advance schema version to %d: %w", m.Version, err)
			}
			// Stamp existing corpora with the version they now conform to.
			if _, err := tx.Exec(`UPDATE meta SET schema_version = ?`, m.Version); err != nil {
				if !isSQLiteError(err, "no such table") {
					return fmt.Errorf("stamp corpora at version %d: %w", m.Version, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return clerr.Wrap(clerr.KindStoreIntegrity, "apply migrations", err)
	}
	return nil
}

// checkVersion verifies a read-only open is not ahead of or behind the
// declared migrations.
func (s *Store) checkVersion() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return clerr.Wrap(clerr.KindStoreIntegrity, "read schema version", err)
	}
	latest := CurrentVersion()
	if current > latest {
		return clerr.New(clerr.KindStoreIntegrity,
			"database schema version %d is newer than this build supports (%d)", current, latest)
	}
	if current < latest {
		return clerr.New(clerr.KindStoreIntegrity,
			"database schema version %d requires migration to %d (open read-write first)", current, latest)
	}
	return nil
}

// PendingMigrations lists migrations newer than the stored version, as
// human-readable reasons for the boundary.
func (s *Store) PendingMigrations() ([]MigrationInfo, error) {
	current, err := s.SchemaVersion()
	if err != nil {
		return nil, err
	}
	var pending []MigrationInfo
	for _, m := range migrations() {
		if m.Version > current {
			pending = append(pending, MigrationInfo{
				Version:     m.Version,
				Description: m.Description,
				UserMessage: m.UserMessage,
			})
		}
	}
	return pending, nil
}
