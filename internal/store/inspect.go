package store

import (
	"database/sql"
	"fmt"
)

// ColumnSchema describes one column for the boundary schema surface.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
	PK   bool   `json:"pk"`
}

// TableSchema describes one table.
type TableSchema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

// TableSchemas introspects the user-visible tables. Internal bookkeeping
// tables (schema_info, app_state, corpus_ui_state) are not reported.
func (s *Store) TableSchemas() ([]TableSchema, error) {
	rows, err := s.db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name NOT IN ('schema_info', 'app_state', 'corpus_ui_state')
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []TableSchema
	for _, name := range names {
		cols, err := s.tableColumns(name)
		if err != nil {
			return nil, err
		}
		out = append(out, TableSchema{Name: name, Columns: cols})
	}
	return out, nil
}

func (s *Store) tableColumns(table string) ([]ColumnSchema, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var out []ColumnSchema
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, ColumnSchema{Name: name, Type: ctype, PK: pk > 0})
	}
	return out, rows.Err()
}
