package normalize

import (
	"testing"

	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/store"
	"github.com/chatlab/chatlab/internal/testutil/dbtest"
)

func newCorpusNormalizer(t *testing.T) (*dbtest.TestStore, *store.Corpus, *Normalizer) {
	t.Helper()
	ts := dbtest.NewTestStore(t)
	corpus, err := ts.Store.CreateCorpus("g", "chatlab", "group")
	if err != nil {
		t.Fatalf("create corpus: %v", err)
	}
	n, err := New(ts.Store, corpus, false)
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return ts, corpus, n
}

func commit(t *testing.T, ts *dbtest.TestStore, n *Normalizer, msgs []event.Message) *store.Batch {
	t.Helper()
	batch, _, err := n.Batch(msgs)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := ts.Store.CommitBatch(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return batch
}

func TestMemberIdentityStable(t *testing.T) {
	ts, corpus, n := newCorpusNormalizer(t)

	commit(t, ts, n, []event.Message{
		{SenderPlatformID: "u1", SenderName: "Alice", Timestamp: 100, Kind: event.KindText, Content: "a"},
		{SenderPlatformID: "u2", SenderName: "Bob", Timestamp: 110, Kind: event.KindText, Content: "b"},
		{SenderPlatformID: "u1", SenderName: "Alice", Timestamp: 120, Kind: event.KindText, Content: "c"},
	})

	members, err := ts.Store.ListMembers(corpus.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].PlatformID != "u1" || members[1].PlatformID != "u2" {
		t.Errorf("platform ids = %q, %q", members[0].PlatformID, members[1].PlatformID)
	}

	if n.MemberCount() != 2 {
		t.Errorf("member count = %d, want 2", n.MemberCount())
	}
}

func TestNameHistoryPartition(t *testing.T) {
	ts, corpus, n := newCorpusNormalizer(t)

	commit(t, ts, n, []event.Message{
		{SenderPlatformID: "u1", SenderName: "Alice", Timestamp: 100, Kind: event.KindText, Content: "a"},
		{SenderPlatformID: "u1", SenderName: "Alice", Timestamp: 200, Kind: event.KindText, Content: "b"},
		{SenderPlatformID: "u1", SenderName: "Ally", Timestamp: 300, Kind: event.KindText, Content: "c"},
		{SenderPlatformID: "u1", SenderName: "Ally", Timestamp: 400, Kind: event.KindText, Content: "d"},
	})

	intervals, err := ts.Store.ListNameHistory(corpus.ID, 1)
	if err != nil {
		t.Fatalf("name history: %v", err)
	}
	if len(intervals) != 2 {
		t.Fatalf("got %d intervals, want 2: %+v", len(intervals), intervals)
	}

	first, second := intervals[0], intervals[1]
	if first.Name != "Alice" || first.StartTS != 100 {
		t.Errorf("first interval = %+v", first)
	}
	if !first.EndTS.Valid || first.EndTS.Int64 != 200 {
		t.Errorf("first interval should close at the prior message ts 200, got %+v", first.EndTS)
	}
	if second.Name != "Ally" || second.StartTS != 300 {
		t.Errorf("second interval = %+v", second)
	}
	if second.EndTS.Valid {
		t.Error("current name interval must have null end_ts")
	}

	// Exactly one open interval per member.
	open := 0
	for _, iv := range intervals {
		if !iv.EndTS.Valid {
			open++
		}
	}
	if open != 1 {
		t.Errorf("open intervals = %d, want 1", open)
	}
}

func TestBatchReordersByTimestamp(t *testing.T) {
	ts, corpus, n := newCorpusNormalizer(t)
	_ = corpus

	batch := commit(t, ts, n, []event.Message{
		{SenderPlatformID: "u1", Timestamp: 300, Kind: event.KindText, Content: "c", PlatformMessageID: "m3"},
		{SenderPlatformID: "u1", Timestamp: 100, Kind: event.KindText, Content: "a", PlatformMessageID: "m1"},
		{SenderPlatformID: "u1", Timestamp: 200, Kind: event.KindText, Content: "b", PlatformMessageID: "m2"},
	})

	var prev int64 = -1
	for _, m := range batch.Messages {
		if m.TS < prev {
			t.Errorf("batch not reordered: ts %d after %d", m.TS, prev)
		}
		prev = m.TS
	}
	// IDs follow the reordered positions.
	if batch.Messages[0].TS != 100 || batch.Messages[0].ID != 1 {
		t.Errorf("first message = %+v", batch.Messages[0])
	}
}

func TestCrossBatchInversionWarns(t *testing.T) {
	ts, _, n := newCorpusNormalizer(t)

	commit(t, ts, n, []event.Message{
		{SenderPlatformID: "u1", Timestamp: 1000, Kind: event.KindText, Content: "a"},
	})

	_, warnings, err := n.Batch([]event.Message{
		{SenderPlatformID: "u1", Timestamp: 500, Kind: event.KindText, Content: "b"},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Code != "timestamp_inversion" {
		t.Errorf("warnings = %+v, want one timestamp_inversion", warnings)
	}
}

func TestReplyResolutionInStream(t *testing.T) {
	ts, corpus, n := newCorpusNormalizer(t)
	_ = corpus

	batch := commit(t, ts, n, []event.Message{
		{SenderPlatformID: "u1", Timestamp: 100, Kind: event.KindText, Content: "a", PlatformMessageID: "m1"},
		{SenderPlatformID: "u2", Timestamp: 110, Kind: event.KindText, Content: "b", ReplyToPlatformID: "m1"},
	})

	reply := batch.Messages[1]
	if !reply.ReplyToMessageID.Valid || reply.ReplyToMessageID.Int64 != 1 {
		t.Errorf("reply not resolved in stream: %+v", reply.ReplyToMessageID)
	}
}

func TestReimportDeduplicates(t *testing.T) {
	ts := dbtest.NewTestStore(t)
	corpus, err := ts.Store.CreateCorpus("g", "chatlab", "group")
	if err != nil {
		t.Fatalf("create corpus: %v", err)
	}

	msgs := []event.Message{
		{SenderPlatformID: "u1", SenderName: "Alice", Timestamp: 100, Kind: event.KindText, Content: "hello"},
		{SenderPlatformID: "u1", SenderName: "Alice", Timestamp: 200, Kind: event.KindText, Content: "world"},
	}

	n1, err := New(ts.Store, corpus, false)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	commit(t, ts, n1, msgs)

	// Second import of the same file into the same corpus.
	corpus2, err := ts.Store.GetCorpus(corpus.ID)
	if err != nil {
		t.Fatalf("reload corpus: %v", err)
	}
	n2, err := New(ts.Store, corpus2, true)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	batch, _, err := n2.Batch(append([]event.Message{}, msgs...))
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch.Messages) != 0 {
		t.Errorf("re-import wrote %d messages, want 0", len(batch.Messages))
	}
	if n2.Skipped() != 2 {
		t.Errorf("skipped = %d, want 2", n2.Skipped())
	}
}

func TestFinishOverridesInferredChatType(t *testing.T) {
	ts, _, n := newCorpusNormalizer(t)

	commit(t, ts, n, []event.Message{
		{SenderPlatformID: "u1", Timestamp: 100, Kind: event.KindText, Content: "a"},
		{SenderPlatformID: "u2", Timestamp: 110, Kind: event.KindText, Content: "b"},
	})

	chatType, _, err := n.Finish(event.Meta{ChatType: event.ChatGroup, ChatTypeInferred: true})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if chatType != event.ChatPrivate {
		t.Errorf("chat type = %q, want private for 2 senders", chatType)
	}

	// Explicit determinations are never overridden.
	chatType, _, err = n.Finish(event.Meta{ChatType: event.ChatGroup, ChatTypeInferred: false})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if chatType != event.ChatGroup {
		t.Errorf("explicit chat type overridden to %q", chatType)
	}
}

func TestContentHashDistinguishesDuplicates(t *testing.T) {
	a := dedupKey(&event.Message{Timestamp: 100, SenderPlatformID: "u1", Content: "x"})
	b := dedupKey(&event.Message{Timestamp: 100, SenderPlatformID: "u1", Content: "y"})
	c := dedupKey(&event.Message{Timestamp: 100, SenderPlatformID: "u1", Content: "x"})
	if a == b {
		t.Error("different content should produce different keys")
	}
	if a != c {
		t.Error("identical records should produce identical keys")
	}
}
