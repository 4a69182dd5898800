package worker

import (
	"context"
	"testing"
	"time"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/store"
	"github.com/chatlab/chatlab/internal/testutil/dbtest"
)

func testPool(t *testing.T) *Pool {
	t.Helper()
	ts := dbtest.NewTestStore(t)
	openRO := func() (*store.Store, error) {
		return store.OpenReadOnly(ts.Store.Path())
	}
	p := New(ts.Store, openRO, 2, nil)
	t.Cleanup(p.Stop)
	return p
}

func TestJobRoundTrip(t *testing.T) {
	p := testPool(t)

	err := p.Submit(Job{
		ID:   "j1",
		Kind: "analytics",
		Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
			return 42, nil
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := p.Wait(ctx, "j1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !res.OK || res.Data != 42 {
		t.Errorf("result = %+v", res)
	}

	status, ok := p.Status("j1")
	if !ok || status.State != StateDone {
		t.Errorf("status = %+v", status)
	}
}

func TestResultsCorrelateByID(t *testing.T) {
	p := testPool(t)

	for _, id := range []string{"a", "b", "c"} {
		id := id
		err := p.Submit(Job{
			ID:   id,
			Kind: "analytics",
			Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
				return id, nil
			},
		})
		if err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	seen := make(map[string]bool)
	timeout := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case res := <-p.Results():
			if res.Data != res.ID {
				t.Errorf("result %q carries data %v", res.ID, res.Data)
			}
			seen[res.ID] = true
		case <-timeout:
			t.Fatalf("timed out; saw %v", seen)
		}
	}
}

func TestDuplicateJobID(t *testing.T) {
	p := testPool(t)
	run := func(ctx context.Context, st *store.Store) (interface{}, error) { return nil, nil }

	if err := p.Submit(Job{ID: "dup", Kind: "x", Run: run}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(Job{ID: "dup", Kind: "x", Run: run}); err == nil {
		t.Error("expected duplicate id rejection")
	}
}

func TestCancelRunningJob(t *testing.T) {
	p := testPool(t)

	started := make(chan struct{})
	err := p.Submit(Job{
		ID:   "slow",
		Kind: "analytics",
		Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-started
	p.Cancel("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := p.Wait(ctx, "slow")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.OK || res.Kind != clerr.KindCanceled {
		t.Errorf("result = %+v, want canceled", res)
	}

	status, _ := p.Status("slow")
	if status.State != StateCanceled {
		t.Errorf("state = %q, want canceled", status.State)
	}
}

func TestErrorClassification(t *testing.T) {
	p := testPool(t)

	err := p.Submit(Job{
		ID:   "boom",
		Kind: "analytics",
		Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
			return nil, clerr.New(clerr.KindTimeout, "deadline exceeded")
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := p.Wait(ctx, "boom")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Kind != clerr.KindTimeout {
		t.Errorf("kind = %v, want timeout", res.Kind)
	}
	if res.OK {
		t.Error("failed job reported OK")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	ts := dbtest.NewTestStore(t)
	p := New(ts.Store, func() (*store.Store, error) {
		return store.OpenReadOnly(ts.Store.Path())
	}, 1, nil)
	p.Stop()

	err := p.Submit(Job{ID: "late", Kind: "x", Run: func(ctx context.Context, st *store.Store) (interface{}, error) {
		return nil, nil
	}})
	if err == nil {
		t.Error("expected rejection after stop")
	}
}
