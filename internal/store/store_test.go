package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "chatlab.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCorpusLifecycle(t *testing.T) {
	st := testStore(t)

	c, err := st.CreateCorpus("My Group", "line", "group")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" {
		t.Fatal("corpus id is empty")
	}

	got, err := st.GetCorpus(c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "My Group" || got.Platform != "line" || got.ChatType != "group" {
		t.Errorf("unexpected corpus: %+v", got)
	}
	if got.SchemaVersion != CurrentVersion() {
		t.Errorf("schema version = %d, want %d", got.SchemaVersion, CurrentVersion())
	}

	all, err := st.ListCorpora()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("list returned %d corpora, want 1", len(all))
	}

	if err := st.DeleteCorpus(c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetCorpus(c.ID); err != sql.ErrNoRows {
		t.Errorf("get after delete: err = %v, want ErrNoRows", err)
	}
}

func TestDeleteCorpusCascades(t *testing.T) {
	st := testStore(t)

	c, err := st.CreateCorpus("g", "qq", "group")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	batch := &Batch{
		CorpusID: c.ID,
		Members: []*Member{
			{CorpusID: c.ID, ID: 1, PlatformID: "u1", AccountName: "Alice"},
		},
		Messages: []*Message{
			{CorpusID: c.ID, ID: 1, SenderID: 1, TS: 100, Kind: "text",
				Content: sql.NullString{String: "hi", Valid: true}, DedupKey: "k1"},
		},
		NameEvents: []NameEvent{{MemberID: 1, Name: "Alice", StartTS: 100}},
		MessageSeq: 1,
		MemberSeq:  1,
	}
	if err := st.CommitBatch(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := st.DeleteCorpus(c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, table := range []string{"message", "member", "name_history"} {
		var n int
		if err := st.db.QueryRow(
			"SELECT COUNT(*) FROM "+table+" WHERE corpus_id = ?", c.ID,
		).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s still has %d rows after delete", table, n)
		}
	}
}

func TestCommitBatchRoundTrip(t *testing.T) {
	st := testStore(t)

	c, err := st.CreateCorpus("g", "line", "group")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	batch := &Batch{
		CorpusID: c.ID,
		Members: []*Member{
			{CorpusID: c.ID, ID: 1, PlatformID: "u1", AccountName: "Alice", Roles: []string{"admin"}},
			{CorpusID: c.ID, ID: 2, PlatformID: "u2", GroupNickname: "Bobby"},
		},
		Messages: []*Message{
			{CorpusID: c.ID, ID: 1, SenderID: 1, TS: 100, Kind: "text",
				Content: sql.NullString{String: "hi", Valid: true}, DedupKey: "k1",
				PlatformMessageID: sql.NullString{String: "m1", Valid: true}},
			{CorpusID: c.ID, ID: 2, SenderID: 2, TS: 110, Kind: "text",
				Content: sql.NullString{String: "yo", Valid: true}, DedupKey: "k2",
				ReplyToPlatformID: sql.NullString{String: "m1", Valid: true},
				ReplyToMessageID:  sql.NullInt64{Int64: 1, Valid: true}},
		},
		MessageSeq: 2,
		MemberSeq:  2,
	}
	if err := st.CommitBatch(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}

	members, err := st.ListMembers(c.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].DisplayName() != "Alice" || members[1].DisplayName() != "Bobby" {
		t.Errorf("display names = %q, %q", members[0].DisplayName(), members[1].DisplayName())
	}
	if len(members[0].Roles) != 1 || members[0].Roles[0] != "admin" {
		t.Errorf("roles round-trip failed: %v", members[0].Roles)
	}

	n, err := st.CountMessages(c.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("message count = %d, want 2", n)
	}

	got, err := st.GetCorpus(c.ID)
	if err != nil {
		t.Fatalf("get corpus: %v", err)
	}
	if got.MessageSeq != 2 || got.MemberSeq != 2 {
		t.Errorf("sequences = %d/%d, want 2/2", got.MessageSeq, got.MemberSeq)
	}
}

func TestExistingDedupKeys(t *testing.T) {
	st := testStore(t)
	c, _ := st.CreateCorpus("g", "qq", "group")

	batch := &Batch{
		CorpusID: c.ID,
		Members:  []*Member{{CorpusID: c.ID, ID: 1, PlatformID: "u1"}},
		Messages: []*Message{
			{CorpusID: c.ID, ID: 1, SenderID: 1, TS: 1, Kind: "text", DedupKey: "a"},
			{CorpusID: c.ID, ID: 2, SenderID: 1, TS: 2, Kind: "text", DedupKey: "b"},
		},
		MessageSeq: 2, MemberSeq: 1,
	}
	if err := st.CommitBatch(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}

	existing, err := st.ExistingDedupKeys(c.ID, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("dedup keys: %v", err)
	}
	if _, ok := existing["a"]; !ok {
		t.Error("key a should exist")
	}
	if _, ok := existing["c"]; ok {
		t.Error("key c should not exist")
	}
}

func TestBindPendingReplies(t *testing.T) {
	st := testStore(t)
	c, _ := st.CreateCorpus("g", "chatlab", "group")

	// Reply arrives before its target.
	batch := &Batch{
		CorpusID: c.ID,
		Members:  []*Member{{CorpusID: c.ID, ID: 1, PlatformID: "u1"}},
		Messages: []*Message{
			{CorpusID: c.ID, ID: 1, SenderID: 1, TS: 1, Kind: "text", DedupKey: "a",
				ReplyToPlatformID: sql.NullString{String: "late", Valid: true}},
			{CorpusID: c.ID, ID: 2, SenderID: 1, TS: 2, Kind: "text", DedupKey: "b",
				PlatformMessageID: sql.NullString{String: "late", Valid: true}},
			{CorpusID: c.ID, ID: 3, SenderID: 1, TS: 3, Kind: "text", DedupKey: "c",
				ReplyToPlatformID: sql.NullString{String: "never", Valid: true}},
		},
		MessageSeq: 3, MemberSeq: 1,
	}
	if err := st.CommitBatch(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bound, err := st.BindPendingReplies(c.ID)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if bound != 1 {
		t.Errorf("bound = %d, want 1", bound)
	}

	var target sql.NullInt64
	if err := st.db.QueryRow(
		`SELECT reply_to_message_id FROM message WHERE corpus_id = ? AND id = 1`, c.ID,
	).Scan(&target); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !target.Valid || target.Int64 != 2 {
		t.Errorf("reply target = %+v, want 2", target)
	}

	// The unresolvable one stays dangling but preserved.
	dangling, err := st.CountDanglingReplies(c.ID)
	if err != nil {
		t.Fatalf("dangling: %v", err)
	}
	if dangling != 1 {
		t.Errorf("dangling = %d, want 1", dangling)
	}
}

func TestMonotoneMessageIDs(t *testing.T) {
	st := testStore(t)
	c, _ := st.CreateCorpus("g", "line", "group")

	batch := &Batch{
		CorpusID: c.ID,
		Members:  []*Member{{CorpusID: c.ID, ID: 1, PlatformID: "u1"}},
		MessageSeq: 3, MemberSeq: 1,
		Messages: []*Message{
			{CorpusID: c.ID, ID: 1, SenderID: 1, TS: 10, Kind: "text", DedupKey: "a"},
			{CorpusID: c.ID, ID: 2, SenderID: 1, TS: 20, Kind: "text", DedupKey: "b"},
			{CorpusID: c.ID, ID: 3, SenderID: 1, TS: 30, Kind: "text", DedupKey: "c"},
		},
	}
	if err := st.CommitBatch(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rows, err := st.db.Query(`SELECT ts FROM message WHERE corpus_id = ? ORDER BY id`, c.ID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var prev int64 = -1
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if ts < prev {
			t.Errorf("timestamps decrease in id order: %d after %d", ts, prev)
		}
		prev = ts
	}
}
