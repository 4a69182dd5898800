// Package dbtest provides shared database test helpers for seeding and
// querying test corpora. It is importable from any test package without
// circular dependency issues (it does not import internal/analytics).
package dbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/chatlab/chatlab/internal/store"
)

// TestStore wraps a migrated store with builder helpers for seeding.
type TestStore struct {
	Store *store.Store
	T     testing.TB

	nextMessageID map[string]int64
	nextMemberID  map[string]int64
}

// NewTestStore creates a store in a temp directory with all migrations
// applied.
func NewTestStore(t testing.TB) *TestStore {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chatlab.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &TestStore{
		Store:         st,
		T:             t,
		nextMessageID: make(map[string]int64),
		nextMemberID:  make(map[string]int64),
	}
}

// AddCorpus inserts a corpus and returns its id.
func (ts *TestStore) AddCorpus(name string) string {
	ts.T.Helper()
	c, err := ts.Store.CreateCorpus(name, "chatlab", "group")
	if err != nil {
		ts.T.Fatalf("AddCorpus: %v", err)
	}
	return c.ID
}

// MemberOpts configures a member to insert.
type MemberOpts struct {
	PlatformID    string // defaults to "u<id>"
	AccountName   string
	GroupNickname string
}

// AddMember inserts a member and returns its internal id.
func (ts *TestStore) AddMember(corpusID string, opts MemberOpts) int64 {
	ts.T.Helper()
	ts.nextMemberID[corpusID]++
	id := ts.nextMemberID[corpusID]
	if opts.PlatformID == "" {
		opts.PlatformID = fmt.Sprintf("u%d", id)
	}

	batch := &store.Batch{
		CorpusID: corpusID,
		Members: []*store.Member{{
			CorpusID:      corpusID,
			ID:            id,
			PlatformID:    opts.PlatformID,
			AccountName:   opts.AccountName,
			GroupNickname: opts.GroupNickname,
		}},
		MessageSeq: ts.nextMessageID[corpusID],
		MemberSeq:  id,
	}
	if err := ts.Store.CommitBatch(batch); err != nil {
		ts.T.Fatalf("AddMember: %v", err)
	}
	return id
}

// MessageOpts configures a message to insert.
type MessageOpts struct {
	SenderID int64
	TS       int64
	Kind     string // defaults to "text"
	Content  string
}

// AddMessage inserts one message and returns its id.
func (ts *TestStore) AddMessage(corpusID string, opts MessageOpts) int64 {
	ts.T.Helper()
	return ts.AddMessages(corpusID, opts)[0]
}

// AddMessages inserts several messages in one batch, returning their ids.
func (ts *TestStore) AddMessages(corpusID string, opts ...MessageOpts) []int64 {
	ts.T.Helper()

	batch := &store.Batch{CorpusID: corpusID}
	ids := make([]int64, 0, len(opts))
	for _, o := range opts {
		ts.nextMessageID[corpusID]++
		id := ts.nextMessageID[corpusID]
		kind := o.Kind
		if kind == "" {
			kind = "text"
		}
		batch.Messages = append(batch.Messages, &store.Message{
			CorpusID: corpusID,
			ID:       id,
			SenderID: o.SenderID,
			TS:       o.TS,
			Kind:     kind,
			Content:  sql.NullString{String: o.Content, Valid: true},
			DedupKey: fmt.Sprintf("k%d", id),
		})
		ids = append(ids, id)
	}
	batch.MessageSeq = ts.nextMessageID[corpusID]
	batch.MemberSeq = ts.nextMemberID[corpusID]
	if err := ts.Store.CommitBatch(batch); err != nil {
		ts.T.Fatalf("AddMessages: %v", err)
	}

	if err := ts.Store.RefreshTimeBounds(corpusID); err != nil {
		ts.T.Fatalf("RefreshTimeBounds: %v", err)
	}
	return ids
}
