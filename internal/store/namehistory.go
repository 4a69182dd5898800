package store

import (
	"database/sql"
	"fmt"
)

// NameInterval is one entry of a member's display-name history. EndTS is
// null for the currently-used name.
type NameInterval struct {
	MemberID int64
	Name     string
	StartTS  int64
	EndTS    sql.NullInt64
}

// ListNameHistory returns a member's name intervals in start order.
func (s *Store) ListNameHistory(corpusID string, memberID int64) ([]NameInterval, error) {
	rows, err := s.db.Query(`
		SELECT member_id, name, start_ts, end_ts
		FROM name_history
		WHERE corpus_id = ? AND member_id = ?
		ORDER BY start_ts
	`, corpusID, memberID)
	if err != nil {
		return nil, fmt.Errorf("list name history: %w", err)
	}
	defer rows.Close()

	var out []NameInterval
	for rows.Next() {
		var iv NameInterval
		if err := rows.Scan(&iv.MemberID, &iv.Name, &iv.StartTS, &iv.EndTS); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// CurrentNames returns the open name interval per member for a corpus.
func (s *Store) CurrentNames(corpusID string) (map[int64]string, error) {
	rows, err := s.db.Query(`
		SELECT member_id, name FROM name_history
		WHERE corpus_id = ? AND end_ts IS NULL
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("current names: %w", err)
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
