// Package worker hosts import and analytics jobs off the interactive
// thread. A fixed pool of analytics workers each owns its own read-only
// store connection; a single import worker owns the read-write connection,
// so all store writes are serialized through it. The router correlates
// requests and responses by job id and forwards cancellation markers the
// jobs poll at their own checkpoints.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/store"
)

// KindImport routes a job to the single import worker; anything else runs
// on the analytics workers.
const KindImport = "import"

// State is the lifecycle of a job.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateDone     State = "done"
	StateError    State = "error"
	StateCanceled State = "canceled"
)

// RunFunc is the body of a job. The store handle is the worker's own
// connection: read-only for analytics workers, read-write for the import
// worker.
type RunFunc func(ctx context.Context, st *store.Store) (interface{}, error)

// Job is one unit of work.
type Job struct {
	ID   string
	Kind string
	Run  RunFunc
}

// Result correlates a job outcome back to its id.
type Result struct {
	ID   string
	OK   bool
	Data interface{}
	Err  error
	Kind clerr.Kind // error classification; zero when OK
}

// Status is the poll-visible view of a job.
type Status struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	State    State           `json:"state"`
	Progress *event.Progress `json:"progress,omitempty"`
	Result   *Result         `json:"-"`
	Error    string          `json:"error,omitempty"`
}

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	status Status
	done   chan struct{} // closed once status.Result is set
}

// Pool is the worker pool and job router.
type Pool struct {
	rw     *store.Store
	openRO func() (*store.Store, error)
	logger *slog.Logger

	analytic chan *jobEntry
	importCh chan *jobEntry
	results  chan Result

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DefaultSize is min(4, hardware parallelism).
func DefaultSize() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New creates a pool. rw is the single read-write store; openRO opens a
// fresh read-only connection per analytics worker.
func New(rw *store.Store, openRO func() (*store.Store, error), size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		rw:       rw,
		openRO:   openRO,
		logger:   logger,
		analytic: make(chan *jobEntry),
		importCh: make(chan *jobEntry),
		results:  make(chan Result, 64),
		jobs:     make(map[string]*jobEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.start(size)
	return p
}

func (p *Pool) start(size int) {
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.analyticsWorker(i)
	}
	p.wg.Add(1)
	go p.importWorker()
}

func (p *Pool) analyticsWorker(n int) {
	defer p.wg.Done()

	st, err := p.openRO()
	if err != nil {
		// Fall back to the shared connection rather than dropping the
		// worker; reads stay correct, only snapshot isolation is lost.
		p.logger.Warn("analytics worker using shared connection", "worker", n, "error", err)
		st = p.rw
	} else {
		defer st.Close()
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case entry := <-p.analytic:
			p.run(entry, st)
		}
	}
}

func (p *Pool) importWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case entry := <-p.importCh:
			p.run(entry, p.rw)
		}
	}
}

func (p *Pool) run(entry *jobEntry, st *store.Store) {
	p.mu.Lock()
	if entry.status.State == StateCanceled {
		p.mu.Unlock()
		return
	}
	entry.status.State = StateRunning
	jobCtx, cancel := context.WithCancel(p.ctx)
	entry.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	data, err := entry.job.Run(jobCtx, st)

	res := Result{ID: entry.job.ID, OK: err == nil, Data: data, Err: err}
	p.mu.Lock()
	switch {
	case err == nil:
		entry.status.State = StateDone
	case errors.Is(err, context.Canceled) || clerr.KindOf(err) == clerr.KindCanceled:
		entry.status.State = StateCanceled
		res.Kind = clerr.KindCanceled
	default:
		entry.status.State = StateError
		res.Kind = clerr.KindOf(err)
	}
	if err != nil {
		entry.status.Error = err.Error()
		if clerr.IsFatal(res.Kind) {
			p.logger.Error("job failed", "job", entry.job.ID, "kind", entry.job.Kind, "error", err)
		}
	}
	entry.status.Result = &res
	close(entry.done)
	p.mu.Unlock()

	select {
	case p.results <- res:
	case <-p.ctx.Done():
	}
}

// Submit enqueues a job. Returns an error for duplicate ids or a stopped
// pool. Submission never blocks on worker availability; delivery happens
// from a goroutine so the interactive thread stays responsive.
func (p *Pool) Submit(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id must not be empty")
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("pool is stopped")
	}
	if _, dup := p.jobs[job.ID]; dup {
		p.mu.Unlock()
		return fmt.Errorf("duplicate job id %q", job.ID)
	}
	entry := &jobEntry{
		job:    job,
		status: Status{ID: job.ID, Kind: job.Kind, State: StatePending},
		done:   make(chan struct{}),
	}
	p.jobs[job.ID] = entry
	p.mu.Unlock()

	ch := p.analytic
	if job.Kind == KindImport {
		ch = p.importCh
	}
	go func() {
		select {
		case ch <- entry:
		case <-p.ctx.Done():
		}
	}()
	return nil
}

// Cancel forwards a cancellation marker to the job. A job that has not
// started transitions directly to canceled.
func (p *Pool) Cancel(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.jobs[id]
	if !ok {
		return
	}
	switch entry.status.State {
	case StatePending:
		entry.status.State = StateCanceled
		res := Result{ID: id, Err: context.Canceled, Kind: clerr.KindCanceled}
		entry.status.Result = &res
		entry.status.Error = res.Err.Error()
		close(entry.done)
	case StateRunning:
		if entry.cancel != nil {
			entry.cancel()
		}
	}
}

// Wait blocks until the job completes or ctx expires. The job keeps
// running if the wait is abandoned; pair with Cancel to stop it.
func (p *Pool) Wait(ctx context.Context, id string) (*Result, error) {
	p.mu.Lock()
	entry, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no job %q", id)
	}
	select {
	case <-entry.done:
		p.mu.Lock()
		res := entry.status.Result
		p.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Results returns the channel job outcomes are delivered on.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Status reports the current state of a job.
func (p *Pool) Status(id string) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.jobs[id]
	if !ok {
		return Status{}, false
	}
	return entry.status, true
}

// SetProgress records the latest progress report for a job. Import jobs
// call this from their progress callback.
func (p *Pool) SetProgress(id string, pr event.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.jobs[id]; ok {
		prCopy := pr
		entry.status.Progress = &prCopy
	}
}

// Stop cancels running jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
