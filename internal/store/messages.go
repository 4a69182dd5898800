package store

import (
	"database/sql"
	"fmt"
)

// Message is one chat record as stored.
type Message struct {
	CorpusID          string
	ID                int64
	SenderID          int64
	TS                int64
	Kind              string
	Content           sql.NullString
	ReplyToMessageID  sql.NullInt64
	ReplyToPlatformID sql.NullString
	PlatformMessageID sql.NullString
	Extra             sql.NullString
	DedupKey          string
}

// NameEvent records a display-name transition observed during a batch.
// When ClosePrev is set the member's open name_history interval is closed
// at CloseTS before the new interval opens at StartTS.
type NameEvent struct {
	MemberID  int64
	Name      string
	StartTS   int64
	ClosePrev bool
	CloseTS   int64
}

// Batch is the unit of transactional import writes: the member upserts,
// messages, and name transitions of one parser batch, plus the sequence
// counters the corpus advances to. A crash leaves either the whole batch or
// none of it.
type Batch struct {
	CorpusID   string
	Members    []*Member
	Messages   []*Message
	NameEvents []NameEvent
	MessageSeq int64
	MemberSeq  int64
}

// CommitBatch writes one import batch in a single transaction.
func (s *Store) CommitBatch(b *Batch) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := upsertMembersTx(tx, b.Members); err != nil {
			return err
		}
		if err := insertMessagesTx(tx, b.CorpusID, b.Messages); err != nil {
			return err
		}
		if err := applyNameEventsTx(tx, b.CorpusID, b.NameEvents); err != nil {
			return err
		}
		_, err := tx.Exec(`
			UPDATE meta SET message_seq = ?, member_seq = ?, updated_at = datetime('now')
			WHERE corpus_id = ?
		`, b.MessageSeq, b.MemberSeq, b.CorpusID)
		if err != nil {
			return fmt.Errorf("advance sequences: %w", err)
		}
		return nil
	})
}

const messageValuesPerRow = 11

func insertMessagesTx(tx *sql.Tx, corpusID string, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return insertInChunks(tx, len(msgs), messageValuesPerRow,
		`INSERT INTO message (corpus_id, id, sender_id, ts, type, content,
			reply_to_message_id, reply_to_platform_id, platform_message_id, extra, dedup_key) VALUES `,
		func(start, end int) ([]string, []interface{}) {
			values := make([]string, 0, end-start)
			args := make([]interface{}, 0, (end-start)*messageValuesPerRow)
			for _, m := range msgs[start:end] {
				values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
				args = append(args, corpusID, m.ID, m.SenderID, m.TS, m.Kind, m.Content,
					m.ReplyToMessageID, m.ReplyToPlatformID, m.PlatformMessageID, m.Extra, m.DedupKey)
			}
			return values, args
		})
}

func applyNameEventsTx(tx *sql.Tx, corpusID string, events []NameEvent) error {
	for _, ev := range events {
		if ev.ClosePrev {
			_, err := tx.Exec(`
				UPDATE name_history SET end_ts = ?
				WHERE corpus_id = ? AND member_id = ? AND end_ts IS NULL
			`, ev.CloseTS, corpusID, ev.MemberID)
			if err != nil {
				return fmt.Errorf("close name interval: %w", err)
			}
		}
		_, err := tx.Exec(`
			INSERT INTO name_history (corpus_id, member_id, name, start_ts, end_ts)
			VALUES (?, ?, ?, ?, NULL)
		`, corpusID, ev.MemberID, ev.Name, ev.StartTS)
		if err != nil {
			return fmt.Errorf("open name interval: %w", err)
		}
	}
	return nil
}

// ExistingDedupKeys reports which of the given dedup keys are already
// present in the corpus. Used to skip duplicates on re-import.
func (s *Store) ExistingDedupKeys(corpusID string, keys []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(keys) == 0 {
		return out, nil
	}
	err := queryInChunks(s.db, keys, []interface{}{corpusID},
		`SELECT dedup_key FROM message WHERE corpus_id = ? AND dedup_key IN (%s)`,
		func(rows *sql.Rows) error {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			out[k] = struct{}{}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BindPendingReplies runs the end-of-import second pass: replies whose
// target had not arrived when they were written are bound via the persisted
// platform_message_id index. Whatever stays unbound remains dangling with
// the platform id string preserved.
func (s *Store) BindPendingReplies(corpusID string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE message SET reply_to_message_id = (
			SELECT m2.id FROM message m2
			WHERE m2.corpus_id = message.corpus_id
			  AND m2.platform_message_id = message.reply_to_platform_id
		)
		WHERE corpus_id = ?
		  AND reply_to_message_id IS NULL
		  AND reply_to_platform_id IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM message m3
			WHERE m3.corpus_id = message.corpus_id
			  AND m3.platform_message_id = message.reply_to_platform_id
		  )
	`, corpusID)
	if err != nil {
		return 0, fmt.Errorf("bind pending replies: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountMessages returns the message count for a corpus.
func (s *Store) CountMessages(corpusID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM message WHERE corpus_id = ?`, corpusID).Scan(&n)
	return n, err
}

// CountDanglingReplies returns how many replies still reference an unknown
// platform message id.
func (s *Store) CountDanglingReplies(corpusID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM message
		WHERE corpus_id = ? AND reply_to_message_id IS NULL AND reply_to_platform_id IS NOT NULL
	`, corpusID).Scan(&n)
	return n, err
}
