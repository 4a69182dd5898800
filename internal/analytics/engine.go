package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Engine runs the analytics queries against one store connection. Analytics
// workers each hold their own read-only Engine; the Engine never writes.
type Engine struct {
	db  *sql.DB
	loc *time.Location
}

// New creates an engine. loc is the corpus timezone used for calendar-day
// bucketization; nil means the host local zone.
func New(db *sql.DB, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{db: db, loc: loc}
}

// scanRow is the shape every streaming analysis consumes: messages in id
// order with sender, timestamp, kind, and content.
type scanRow struct {
	ID       int64
	SenderID int64
	TS       int64
	Kind     string
	Content  sql.NullString
}

// forEachMessage streams the corpus messages in id order through fn,
// with the time filter pushed into the query. The row scan loop is the
// suspension point for query deadlines: QueryContext carries ctx down to
// the store.
func (e *Engine) forEachMessage(ctx context.Context, corpusID string, f TimeFilter, fn func(*scanRow) error) error {
	conds := []string{"corpus_id = ?"}
	args := []interface{}{corpusID}
	fconds, fargs := f.clauses("ts")
	conds = append(conds, fconds...)
	args = append(args, fargs...)

	query := fmt.Sprintf(`
		SELECT id, sender_id, ts, type, content
		FROM message
		WHERE %s
		ORDER BY id
	`, strings.Join(conds, " AND "))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r scanRow
		if err := rows.Scan(&r.ID, &r.SenderID, &r.TS, &r.Kind, &r.Content); err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// memberNames loads the display-name map for a corpus.
func (e *Engine) memberNames(ctx context.Context, corpusID string) (map[int64]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT mb.id, `+memberNameExpr+`
		FROM member mb WHERE mb.corpus_id = ?
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("load member names: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// messageCounts returns per-member message counts within the filter, used
// for chain rates.
func (e *Engine) messageCounts(ctx context.Context, corpusID string, f TimeFilter) (map[int64]int64, error) {
	conds := []string{"corpus_id = ?"}
	args := []interface{}{corpusID}
	fconds, fargs := f.clauses("ts")
	conds = append(conds, fconds...)
	args = append(args, fargs...)

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT sender_id, COUNT(*) FROM message
		WHERE %s GROUP BY sender_id
	`, strings.Join(conds, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
