package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chatlab/chatlab/internal/event"
)

// collected gathers a full parse into inspectable slices.
type collected struct {
	meta     *event.Meta
	members  []event.Member
	messages []event.Message
	done     *event.Done
	order    []event.Type
}

// runParse writes content to a temp file and runs the parser over it.
func runParse(t *testing.T, p Parser, name, content string, opts Options) *collected {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c := &collected{}
	err := p.Parse(context.Background(), path, opts, func(ev event.Event) error {
		c.order = append(c.order, ev.Type)
		switch ev.Type {
		case event.TypeMeta:
			c.meta = ev.Meta
		case event.TypeMembers:
			c.members = append(c.members, ev.Members...)
		case event.TypeMessages:
			c.messages = append(c.messages, ev.Messages...)
		case event.TypeDone:
			c.done = ev.Done
		}
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return c
}

// parseFixtureErr runs a parser over content and returns the error.
func parseFixtureErr(t *testing.T, p Parser, name, content string) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p.Parse(context.Background(), path, Options{}, func(event.Event) error { return nil })
}

// assertStreamOrder verifies the ordering contract: meta first, members
// second, done last.
func assertStreamOrder(t *testing.T, c *collected) {
	t.Helper()
	if len(c.order) < 3 {
		t.Fatalf("too few events: %v", c.order)
	}
	if c.order[0] != event.TypeMeta {
		t.Errorf("first event = %v, want meta", c.order[0])
	}
	if c.order[1] != event.TypeMembers {
		t.Errorf("second event = %v, want members", c.order[1])
	}
	if c.order[len(c.order)-1] != event.TypeDone {
		t.Errorf("last event = %v, want done", c.order[len(c.order)-1])
	}
	metas := 0
	for _, ty := range c.order {
		if ty == event.TypeMeta {
			metas++
		}
	}
	if metas != 1 {
		t.Errorf("meta emitted %d times, want exactly once", metas)
	}
}
