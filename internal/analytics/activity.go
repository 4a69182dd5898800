package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Activity returns the per-member message counts and shares, ordered by
// count descending with member id as the tie-breaker.
func (e *Engine) Activity(ctx context.Context, corpusID string, f TimeFilter) ([]ActivityRow, error) {
	conds := []string{"msg.corpus_id = ?"}
	args := []interface{}{corpusID}
	fconds, fargs := f.clauses("msg.ts")
	conds = append(conds, fconds...)
	args = append(args, fargs...)

	query := fmt.Sprintf(`
		SELECT msg.sender_id, `+memberNameExpr+`, mb.platform_id, COUNT(*) as cnt
		FROM message msg
		JOIN member mb ON mb.corpus_id = msg.corpus_id AND mb.id = msg.sender_id
		WHERE %s
		GROUP BY msg.sender_id
		ORDER BY cnt DESC, msg.sender_id ASC
	`, strings.Join(conds, " AND "))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("activity query: %w", err)
	}
	defer rows.Close()

	var owner sql.NullString
	if err := e.db.QueryRowContext(ctx,
		`SELECT owner_platform_id FROM meta WHERE corpus_id = ?`, corpusID,
	).Scan(&owner); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	var out []ActivityRow
	var total int64
	for rows.Next() {
		var r ActivityRow
		var platformID string
		if err := rows.Scan(&r.MemberID, &r.Name, &platformID, &r.MessageCount); err != nil {
			return nil, err
		}
		r.IsOwner = owner.Valid && owner.String == platformID
		total += r.MessageCount
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total > 0 {
		for i := range out {
			out[i].Percentage = float64(out[i].MessageCount) / float64(total)
		}
	}
	return out, nil
}

// NameHistory returns a member's display-name intervals in start order.
// The current name has a nil end timestamp.
func (e *Engine) NameHistory(ctx context.Context, corpusID string, memberID int64) ([]NameInterval, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT name, start_ts, end_ts FROM name_history
		WHERE corpus_id = ? AND member_id = ?
		ORDER BY start_ts
	`, corpusID, memberID)
	if err != nil {
		return nil, fmt.Errorf("name history query: %w", err)
	}
	defer rows.Close()

	var out []NameInterval
	for rows.Next() {
		var iv NameInterval
		var end sql.NullInt64
		if err := rows.Scan(&iv.Name, &iv.StartTS, &end); err != nil {
			return nil, err
		}
		if end.Valid {
			v := end.Int64
			iv.EndTS = &v
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}
