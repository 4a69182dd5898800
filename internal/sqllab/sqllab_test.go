package sqllab

import (
	"context"
	"testing"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/testutil/dbtest"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"SELECT 1",
		"select * from message",
		"SELECT * FROM message;",
		"  SELECT ts FROM message WHERE content = 'DROP TABLE'",
		"WITH t AS (SELECT 1 AS n) SELECT n FROM t",
		"-- comment\nSELECT 1",
	}
	for _, q := range valid {
		if err := Validate(q); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", q, err)
		}
	}

	invalid := []string{
		"",
		"DELETE FROM message",
		"DROP TABLE message",
		"INSERT INTO message VALUES (1)",
		"UPDATE message SET ts = 0",
		"SELECT 1; DELETE FROM message",
		"PRAGMA journal_mode = DELETE",
		"/* sneaky */ DROP TABLE message",
		"WITH t AS (SELECT 1) DELETE FROM message",
		"ATTACH DATABASE 'x' AS y",
	}
	for _, q := range invalid {
		err := Validate(q)
		if err == nil {
			t.Errorf("Validate(%q) = nil, want rejection", q)
			continue
		}
		if clerr.KindOf(err) != clerr.KindParseStructural {
			t.Errorf("Validate(%q) kind = %v", q, clerr.KindOf(err))
		}
	}
}

func TestQueryRejectsWritesAndLeavesStoreUnchanged(t *testing.T) {
	ts := dbtest.NewTestStore(t)
	corpusID := ts.AddCorpus("g")
	ts.AddMember(corpusID, dbtest.MemberOpts{AccountName: "Alice"})
	ts.AddMessage(corpusID, dbtest.MessageOpts{SenderID: 1, TS: 1, Content: "hi"})

	_, err := Query(context.Background(), ts.Store.DB(), "DELETE FROM message", 0)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if clerr.KindOf(err) != clerr.KindParseStructural {
		t.Errorf("kind = %v", clerr.KindOf(err))
	}

	n, err := ts.Store.CountMessages(corpusID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("message count changed to %d", n)
	}
}

func TestQueryResultShape(t *testing.T) {
	ts := dbtest.NewTestStore(t)
	corpusID := ts.AddCorpus("g")
	ts.AddMember(corpusID, dbtest.MemberOpts{AccountName: "Alice"})
	ts.AddMessages(corpusID,
		dbtest.MessageOpts{SenderID: 1, TS: 1, Content: "a"},
		dbtest.MessageOpts{SenderID: 1, TS: 2, Content: "b"},
	)

	res, err := Query(context.Background(), ts.Store.DB(),
		"SELECT id, content FROM message ORDER BY id", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "id" {
		t.Errorf("columns = %v", res.Columns)
	}
	if res.RowCount != 2 || res.Limited {
		t.Errorf("rowCount = %d limited = %v", res.RowCount, res.Limited)
	}
	if res.Rows[1][1] != "b" {
		t.Errorf("rows = %v", res.Rows)
	}
}

func TestQueryRowCap(t *testing.T) {
	ts := dbtest.NewTestStore(t)
	corpusID := ts.AddCorpus("g")
	ts.AddMember(corpusID, dbtest.MemberOpts{})
	opts := make([]dbtest.MessageOpts, 5)
	for i := range opts {
		opts[i] = dbtest.MessageOpts{SenderID: 1, TS: int64(i), Content: "x"}
	}
	ts.AddMessages(corpusID, opts...)

	res, err := Query(context.Background(), ts.Store.DB(), "SELECT id FROM message", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.RowCount != 3 || !res.Limited {
		t.Errorf("rowCount = %d limited = %v, want capped at 3", res.RowCount, res.Limited)
	}
}
