package store

import (
	"database/sql"
	"fmt"
)

// Corpus is one imported conversation's metadata row.
type Corpus struct {
	ID              string
	Name            string
	Platform        string
	ChatType        string
	MinTS           sql.NullInt64
	MaxTS           sql.NullInt64
	OwnerPlatformID sql.NullString
	Partial         bool
	SchemaVersion   int
	MessageSeq      int64
	MemberSeq       int64
}

const corpusColumns = `corpus_id, name, platform, chat_type, min_ts, max_ts,
	owner_platform_id, partial, schema_version, message_seq, member_seq`

func scanCorpus(row interface{ Scan(...interface{}) error }) (*Corpus, error) {
	var c Corpus
	err := row.Scan(&c.ID, &c.Name, &c.Platform, &c.ChatType, &c.MinTS, &c.MaxTS,
		&c.OwnerPlatformID, &c.Partial, &c.SchemaVersion, &c.MessageSeq, &c.MemberSeq)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCorpus inserts a new corpus row and returns it.
func (s *Store) CreateCorpus(name, platform, chatType string) (*Corpus, error) {
	c := &Corpus{
		ID:            newCorpusID(),
		Name:          name,
		Platform:      platform,
		ChatType:      chatType,
		SchemaVersion: CurrentVersion(),
	}
	_, err := s.db.Exec(`
		INSERT INTO meta (corpus_id, name, platform, chat_type, schema_version)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Platform, c.ChatType, c.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("create corpus: %w", err)
	}
	return c, nil
}

// GetCorpus returns the corpus with the given id, or sql.ErrNoRows.
func (s *Store) GetCorpus(corpusID string) (*Corpus, error) {
	row := s.db.QueryRow(`SELECT `+corpusColumns+` FROM meta WHERE corpus_id = ?`, corpusID)
	return scanCorpus(row)
}

// ListCorpora returns all corpora ordered by creation time.
func (s *Store) ListCorpora() ([]*Corpus, error) {
	rows, err := s.db.Query(`SELECT ` + corpusColumns + ` FROM meta ORDER BY created_at, corpus_id`)
	if err != nil {
		return nil, fmt.Errorf("list corpora: %w", err)
	}
	defer rows.Close()

	var out []*Corpus
	for rows.Next() {
		c, err := scanCorpus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCorpus removes a corpus and everything beneath it in one
// transaction: messages, members, name history, and catalog state.
func (s *Store) DeleteCorpus(corpusID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM message WHERE corpus_id = ?`,
			`DELETE FROM member WHERE corpus_id = ?`,
			`DELETE FROM name_history WHERE corpus_id = ?`,
			`DELETE FROM corpus_ui_state WHERE corpus_id = ?`,
			`DELETE FROM meta WHERE corpus_id = ?`,
		} {
			if _, err := tx.Exec(stmt, corpusID); err != nil {
				return fmt.Errorf("delete corpus %s: %w", corpusID, err)
			}
		}
		// Clear the active selection if it pointed at the deleted corpus.
		if _, err := tx.Exec(
			`DELETE FROM app_state WHERE key = 'active_corpus' AND value = ?`, corpusID,
		); err != nil {
			return fmt.Errorf("clear active corpus: %w", err)
		}
		return nil
	})
}

// SetCorpusOwner records the owner's platform id, or clears it with nil.
func (s *Store) SetCorpusOwner(corpusID string, platformID *string) error {
	var v sql.NullString
	if platformID != nil {
		v = sql.NullString{String: *platformID, Valid: true}
	}
	_, err := s.db.Exec(`
		UPDATE meta SET owner_platform_id = ?, updated_at = datetime('now')
		WHERE corpus_id = ?
	`, v, corpusID)
	return err
}

// MarkPartial sets or clears the partial-import flag.
func (s *Store) MarkPartial(corpusID string, partial bool) error {
	_, err := s.db.Exec(`
		UPDATE meta SET partial = ?, updated_at = datetime('now')
		WHERE corpus_id = ?
	`, partial, corpusID)
	return err
}

// SetChatType overrides the chat type. The normalizer uses this when the
// parser's determination was a fallback guess.
func (s *Store) SetChatType(corpusID, chatType string) error {
	_, err := s.db.Exec(`
		UPDATE meta SET chat_type = ?, updated_at = datetime('now')
		WHERE corpus_id = ?
	`, chatType, corpusID)
	return err
}

// RefreshTimeBounds recomputes min_ts/max_ts from the message table.
func (s *Store) RefreshTimeBounds(corpusID string) error {
	_, err := s.db.Exec(`
		UPDATE meta SET
			min_ts = (SELECT MIN(ts) FROM message WHERE corpus_id = ?),
			max_ts = (SELECT MAX(ts) FROM message WHERE corpus_id = ?),
			updated_at = datetime('now')
		WHERE corpus_id = ?
	`, corpusID, corpusID, corpusID)
	return err
}
