package store

import (
	"path/filepath"
	"testing"
)

func TestMigrateFreshDatabase(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "chatlab.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	version, err := st.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != CurrentVersion() {
		t.Errorf("schema version = %d, want %d", version, CurrentVersion())
	}

	pending, err := st.PendingMigrations()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %v", pending)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "chatlab.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	// Applying again must be a no-op that leaves the same schema.
	if err := st.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	version, err := st.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != CurrentVersion() {
		t.Errorf("schema version = %d, want %d", version, CurrentVersion())
	}

	// Individual steps are idempotent too: re-applying the full list from
	// version 0 against the existing schema must not error or change it.
	if _, err := st.db.Exec(`UPDATE schema_info SET version = 0`); err != nil {
		t.Fatalf("reset version: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("re-run migrations: %v", err)
	}
	version, err = st.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != CurrentVersion() {
		t.Errorf("after re-run schema version = %d, want %d", version, CurrentVersion())
	}
}

func TestMigrateAddsRolesColumn(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "chatlab.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	cols, err := st.tableColumns("member")
	if err != nil {
		t.Fatalf("table columns: %v", err)
	}
	found := false
	for _, c := range cols {
		if c.Name == "roles" {
			found = true
		}
	}
	if !found {
		t.Errorf("member table missing roles column after migration: %v", cols)
	}

	// The default must be the empty list.
	corpus, err := st.CreateCorpus("t", "chatlab", "group")
	if err != nil {
		t.Fatalf("create corpus: %v", err)
	}
	if _, err := st.db.Exec(`
		INSERT INTO member (corpus_id, id, platform_id) VALUES (?, 1, 'u1')
	`, corpus.ID); err != nil {
		t.Fatalf("insert member: %v", err)
	}
	var roles string
	if err := st.db.QueryRow(`
		SELECT roles FROM member WHERE corpus_id = ? AND id = 1
	`, corpus.ID).Scan(&roles); err != nil {
		t.Fatalf("read roles: %v", err)
	}
	if roles != "[]" {
		t.Errorf("roles default = %q, want %q", roles, "[]")
	}
}

func TestOpenRejectsFutureSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatlab.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.db.Exec(`UPDATE schema_info SET version = ?`, CurrentVersion()+10); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	st.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected open to fail on future schema version")
	}
}
