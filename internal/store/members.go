package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Member is a participant within one corpus.
type Member struct {
	CorpusID      string
	ID            int64
	PlatformID    string
	AccountName   string
	GroupNickname string
	Aliases       []string
	Roles         []string
	AvatarRef     string
}

// DisplayName returns the first available of group nickname, account name,
// and platform id.
func (m *Member) DisplayName() string {
	if m.GroupNickname != "" {
		return m.GroupNickname
	}
	if m.AccountName != "" {
		return m.AccountName
	}
	return m.PlatformID
}

func encodeStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// upsertMembersTx writes member rows inside an import batch transaction.
// Existing rows (same corpus + platform id) get their names refreshed;
// explicit ids come from the normalizer's per-corpus sequence.
func upsertMembersTx(tx *sql.Tx, members []*Member) error {
	for _, m := range members {
		_, err := tx.Exec(`
			INSERT INTO member (corpus_id, id, platform_id, account_name, group_nickname, aliases, roles, avatar_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(corpus_id, platform_id) DO UPDATE SET
				account_name = excluded.account_name,
				group_nickname = excluded.group_nickname,
				aliases = excluded.aliases,
				roles = excluded.roles,
				avatar_ref = excluded.avatar_ref
		`, m.CorpusID, m.ID, m.PlatformID, m.AccountName, m.GroupNickname,
			encodeStrings(m.Aliases), encodeStrings(m.Roles), m.AvatarRef)
		if err != nil {
			return fmt.Errorf("upsert member %s: %w", m.PlatformID, err)
		}
	}
	return nil
}

// ListMembers returns all members of a corpus ordered by internal id.
func (s *Store) ListMembers(corpusID string) ([]*Member, error) {
	rows, err := s.db.Query(`
		SELECT corpus_id, id, platform_id, account_name, group_nickname, aliases, roles, avatar_ref
		FROM member WHERE corpus_id = ? ORDER BY id
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMember returns one member by internal id, or sql.ErrNoRows.
func (s *Store) GetMember(corpusID string, memberID int64) (*Member, error) {
	row := s.db.QueryRow(`
		SELECT corpus_id, id, platform_id, account_name, group_nickname, aliases, roles, avatar_ref
		FROM member WHERE corpus_id = ? AND id = ?
	`, corpusID, memberID)
	return scanMember(row)
}

// MemberIDsByPlatformID returns the platform-id to internal-id map for a
// corpus. The normalizer seeds its identity map with this on re-import.
func (s *Store) MemberIDsByPlatformID(corpusID string) (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT platform_id, id FROM member WHERE corpus_id = ?`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("load member ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var pid string
		var id int64
		if err := rows.Scan(&pid, &id); err != nil {
			return nil, err
		}
		out[pid] = id
	}
	return out, rows.Err()
}

func scanMember(row interface{ Scan(...interface{}) error }) (*Member, error) {
	var m Member
	var aliases, roles string
	err := row.Scan(&m.CorpusID, &m.ID, &m.PlatformID, &m.AccountName,
		&m.GroupNickname, &aliases, &roles, &m.AvatarRef)
	if err != nil {
		return nil, err
	}
	m.Aliases = decodeStrings(aliases)
	m.Roles = decodeStrings(roles)
	return &m, nil
}
