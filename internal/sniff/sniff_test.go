package sniff

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/chatlab/chatlab/internal/clerr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{
		ID: "b_format", Priority: 10, Extensions: []string{".txt"},
		Signatures: []*regexp.Regexp{regexp.MustCompile(`^HELLO`)},
	})
	r.Register(Descriptor{
		ID: "a_format", Priority: 10, Extensions: []string{".txt"},
		Signatures: []*regexp.Regexp{regexp.MustCompile(`^HELLO`)},
	})
	r.Register(Descriptor{
		ID: "preferred", Priority: 1, Extensions: []string{".txt"},
		Signatures: []*regexp.Regexp{regexp.MustCompile(`SPECIAL`)},
	})
	r.Register(Descriptor{
		ID: "json_only", Priority: 0, Extensions: []string{".json"},
		Signatures: []*regexp.Regexp{regexp.MustCompile(`\{`)},
	})
	return r
}

func TestSniffPicksLowestPriority(t *testing.T) {
	r := testRegistry()
	path := writeFile(t, "a.txt", "HELLO SPECIAL world\n")

	d, err := r.Sniff(path)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if d.ID != "preferred" {
		t.Errorf("picked %q, want preferred", d.ID)
	}
}

func TestSniffTieBreaksOnID(t *testing.T) {
	r := testRegistry()
	path := writeFile(t, "a.txt", "HELLO world\n")

	d, err := r.Sniff(path)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if d.ID != "a_format" {
		t.Errorf("picked %q, want a_format (lexicographic tie-break)", d.ID)
	}
}

func TestSniffFiltersByExtension(t *testing.T) {
	r := testRegistry()
	path := writeFile(t, "a.json", `{"HELLO": true}`)

	d, err := r.Sniff(path)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if d.ID != "json_only" {
		t.Errorf("picked %q, want json_only", d.ID)
	}
}

func TestSniffUnknownFormat(t *testing.T) {
	r := testRegistry()
	path := writeFile(t, "a.txt", "nothing matches here\n")

	_, err := r.Sniff(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if clerr.KindOf(err) != clerr.KindUnknownFormat {
		t.Errorf("kind = %v, want unknown_format", clerr.KindOf(err))
	}
}

func TestSniffMissingFile(t *testing.T) {
	r := testRegistry()
	_, err := r.Sniff(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	if clerr.KindOf(err) != clerr.KindIO {
		t.Errorf("kind = %v, want io", clerr.KindOf(err))
	}
	var ce *clerr.Error
	if !errors.As(err, &ce) {
		t.Error("error should be a clerr.Error")
	}
}

func TestReadHeadStripsBOMAndCR(t *testing.T) {
	path := writeFile(t, "bom.txt", "\xEF\xBB\xBFline one\r\nline two\r\n")
	head, err := ReadHead(path)
	if err != nil {
		t.Fatalf("read head: %v", err)
	}
	if head != "line one\nline two\n" {
		t.Errorf("head = %q", head)
	}
}

func TestDuplicateDescriptorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate id")
		}
	}()
	r := NewRegistry()
	r.Register(Descriptor{ID: "x"})
	r.Register(Descriptor{ID: "x"})
}
