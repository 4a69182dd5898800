// Package catalog tracks the imported corpora and the active selection,
// along with the lightweight per-corpus UI state the shell persists
// (owner identity, last time filter).
package catalog

import (
	"database/sql"
	"fmt"

	"github.com/chatlab/chatlab/internal/store"
)

const activeKey = "active_corpus"

// Entry is one corpus as the catalog reports it.
type Entry struct {
	Corpus *store.Corpus
	Active bool
}

// Catalog mediates corpus selection over the store.
type Catalog struct {
	st *store.Store
}

// New creates a catalog over the store.
func New(st *store.Store) *Catalog {
	return &Catalog{st: st}
}

// List returns all corpora with the active one flagged.
func (c *Catalog) List() ([]Entry, error) {
	corpora, err := c.st.ListCorpora()
	if err != nil {
		return nil, err
	}
	active, err := c.Active()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(corpora))
	for _, corpus := range corpora {
		out = append(out, Entry{Corpus: corpus, Active: corpus.ID == active})
	}
	return out, nil
}

// Select makes the corpus the active one.
func (c *Catalog) Select(corpusID string) error {
	if _, err := c.st.GetCorpus(corpusID); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("no corpus %s", corpusID)
		}
		return err
	}
	_, err := c.st.DB().Exec(`
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, activeKey, corpusID)
	return err
}

// Active returns the selected corpus id, or empty when none is selected.
func (c *Catalog) Active() (string, error) {
	var id string
	err := c.st.DB().QueryRow(`SELECT value FROM app_state WHERE key = ?`, activeKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a corpus and everything beneath it. Removal and catalog
// cleanup share one transaction in the store.
func (c *Catalog) Delete(corpusID string) error {
	return c.st.DeleteCorpus(corpusID)
}

// SetOwner records which member identity is "me" for a corpus, or clears
// it with nil.
func (c *Catalog) SetOwner(corpusID string, platformID *string) error {
	return c.st.SetCorpusOwner(corpusID, platformID)
}

// SaveTimeFilter persists the last time filter the shell used for a corpus.
func (c *Catalog) SaveTimeFilter(corpusID string, startTS, endTS *int64) error {
	var s, e sql.NullInt64
	if startTS != nil {
		s = sql.NullInt64{Int64: *startTS, Valid: true}
	}
	if endTS != nil {
		e = sql.NullInt64{Int64: *endTS, Valid: true}
	}
	_, err := c.st.DB().Exec(`
		INSERT INTO corpus_ui_state (corpus_id, filter_start_ts, filter_end_ts)
		VALUES (?, ?, ?)
		ON CONFLICT(corpus_id) DO UPDATE SET
			filter_start_ts = excluded.filter_start_ts,
			filter_end_ts = excluded.filter_end_ts
	`, corpusID, s, e)
	return err
}

// TimeFilter returns the persisted time filter for a corpus; both bounds
// nil when none was saved.
func (c *Catalog) TimeFilter(corpusID string) (startTS, endTS *int64, err error) {
	var s, e sql.NullInt64
	err = c.st.DB().QueryRow(`
		SELECT filter_start_ts, filter_end_ts FROM corpus_ui_state WHERE corpus_id = ?
	`, corpusID).Scan(&s, &e)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if s.Valid {
		startTS = &s.Int64
	}
	if e.Valid {
		endTS = &e.Int64
	}
	return startTS, endTS, nil
}
