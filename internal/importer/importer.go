// Package importer drives the sniff → parse → normalize → bulk-write
// pipeline that turns a raw export file into a corpus.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/normalize"
	"github.com/chatlab/chatlab/internal/parser"
	"github.com/chatlab/chatlab/internal/sniff"
	"github.com/chatlab/chatlab/internal/store"
)

// Options configures one import run.
type Options struct {
	// BatchSize is the number of messages per write transaction.
	// Defaults to 1000.
	BatchSize int

	// Location is the timezone for wall-clock exports; nil = host local.
	Location *time.Location

	// CorpusID re-imports into an existing corpus instead of creating one.
	CorpusID string

	// Progress receives throttled progress reports. May be nil.
	Progress func(event.Progress)
}

// Summary holds statistics from a completed import.
type Summary struct {
	CorpusID          string
	Format            string
	MessagesProcessed int64
	MessagesAdded     int64
	MessagesSkipped   int64
	RecordErrors      int64
	RepliesBound      int64
	MemberCount       int64
	Warnings          []normalize.Warning
	Partial           bool
	Duration          time.Duration
}

// progressInterval and progressEveryN bound the reporting rate: a report
// goes out at least every N messages or every interval, whichever first.
const (
	progressInterval = 250 * time.Millisecond
	progressEveryN   = 1000
)

// Coordinator owns the parser registry and the store write path.
type Coordinator struct {
	st     *store.Store
	reg    *sniff.Registry
	parse  map[string]parser.ParseFunc
	logger *slog.Logger
}

// New creates an import coordinator over the built-in parser set.
func New(st *store.Store, logger *slog.Logger) *Coordinator {
	reg, funcs := parser.NewRegistry()
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{st: st, reg: reg, parse: funcs, logger: logger}
}

// Registry exposes the sniffer registry (for format listing).
func (c *Coordinator) Registry() *sniff.Registry {
	return c.reg
}

// Import runs the full pipeline for one file. Cancellation is checked at
// every batch boundary; a canceled run rolls back its open transaction and
// leaves the corpus marked partial.
func (c *Coordinator) Import(ctx context.Context, path string, opts Options) (*Summary, error) {
	start := time.Now()
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	summary := &Summary{}
	report := c.progressReporter(opts)

	report(event.Progress{Phase: event.PhaseSniffing}, true)
	desc, err := c.reg.Sniff(path)
	if err != nil {
		return nil, err
	}
	summary.Format = desc.ID
	c.logger.Info("format identified", "file", path, "format", desc.ID, "platform", desc.Platform)

	parseFn := c.parse[desc.ID]
	if parseFn == nil {
		return nil, clerr.New(clerr.KindInternal, "no parser registered for %s", desc.ID)
	}

	ing := &ingest{
		c:       c,
		opts:    opts,
		summary: summary,
		report:  report,
	}

	parseOpts := parser.Options{
		BatchSize: opts.BatchSize,
		Location:  opts.Location,
		RecordError: func(line int, err error) {
			summary.RecordErrors++
			c.logger.Warn("record skipped", "line", line, "error", err)
		},
	}

	err = parseFn(ctx, path, parseOpts, ing.sink)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return c.finishCanceled(summary, ing, start, err)
		}
		if ing.corpus != nil && !ing.reimport {
			// A structurally broken file should not leave a husk behind.
			if delErr := c.st.DeleteCorpus(ing.corpus.ID); delErr != nil {
				c.logger.Warn("cleanup failed corpus", "corpus", ing.corpus.ID, "error", delErr)
			}
		}
		return nil, err
	}
	if ing.corpus == nil {
		return nil, clerr.New(clerr.KindParseStructural, "parser produced no meta event")
	}

	if err := ing.finish(); err != nil {
		return nil, err
	}

	summary.CorpusID = ing.corpus.ID
	summary.Duration = time.Since(start)
	report(event.Progress{
		Phase:             event.PhaseDone,
		MessagesProcessed: summary.MessagesProcessed,
	}, true)
	c.logger.Info("import complete",
		"corpus", summary.CorpusID,
		"added", summary.MessagesAdded,
		"skipped", summary.MessagesSkipped,
		"record_errors", summary.RecordErrors,
		"duration", summary.Duration,
	)
	return summary, nil
}

// finishCanceled marks the corpus partial and returns the typed result.
func (c *Coordinator) finishCanceled(summary *Summary, ing *ingest, start time.Time, cause error) (*Summary, error) {
	summary.Partial = true
	summary.Duration = time.Since(start)
	if ing.corpus != nil {
		summary.CorpusID = ing.corpus.ID
		if err := c.st.MarkPartial(ing.corpus.ID, true); err != nil {
			c.logger.Warn("mark partial failed", "corpus", ing.corpus.ID, "error", err)
		}
		if err := c.st.RefreshTimeBounds(ing.corpus.ID); err != nil {
			c.logger.Warn("refresh time bounds failed", "corpus", ing.corpus.ID, "error", err)
		}
	}
	kind := clerr.KindCanceled
	if errors.Is(cause, context.DeadlineExceeded) {
		kind = clerr.KindTimeout
	}
	return summary, clerr.Wrap(kind, "import interrupted", cause)
}

// progressReporter throttles reports: at least one per progressEveryN
// messages or per progressInterval, whichever comes first. force bypasses
// the throttle for phase transitions.
func (c *Coordinator) progressReporter(opts Options) func(event.Progress, bool) {
	if opts.Progress == nil {
		return func(event.Progress, bool) {}
	}
	limiter := rate.Sometimes{First: 1, Interval: progressInterval}
	var lastReported int64
	return func(p event.Progress, force bool) {
		if force || p.MessagesProcessed-lastReported >= progressEveryN {
			lastReported = p.MessagesProcessed
			opts.Progress(p)
			return
		}
		limiter.Do(func() {
			lastReported = p.MessagesProcessed
			opts.Progress(p)
		})
	}
}

// ingest consumes the parser event stream and feeds the normalizer and
// store. One value per import run.
type ingest struct {
	c       *Coordinator
	opts    Options
	summary *Summary
	report  func(event.Progress, bool)

	meta     *event.Meta
	corpus   *store.Corpus
	norm     *normalize.Normalizer
	reimport bool
}

func (g *ingest) sink(ev event.Event) error {
	switch ev.Type {
	case event.TypeMeta:
		return g.onMeta(ev.Meta)
	case event.TypeMembers:
		if g.norm == nil {
			return clerr.New(clerr.KindInternal, "members event before meta")
		}
		g.norm.Roster(ev.Members)
		return nil
	case event.TypeMessages:
		return g.onBatch(ev.Messages)
	case event.TypeProgress:
		p := *ev.Progress
		p.MessagesProcessed = g.summary.MessagesProcessed
		g.report(p, false)
		return nil
	case event.TypeDone:
		return nil
	case event.TypeError:
		return ev.Err
	default:
		return clerr.New(clerr.KindInternal, "unknown event type %d", ev.Type)
	}
}

func (g *ingest) onMeta(meta *event.Meta) error {
	g.meta = meta

	if g.opts.CorpusID != "" {
		corpus, err := g.c.st.GetCorpus(g.opts.CorpusID)
		if err != nil {
			return clerr.Wrap(clerr.KindIO, "load corpus for re-import", err)
		}
		g.corpus = corpus
		g.reimport = true
	} else {
		name := meta.Name
		if name == "" {
			name = "(unnamed)"
		}
		corpus, err := g.c.st.CreateCorpus(name, meta.Platform, string(meta.ChatType))
		if err != nil {
			return clerr.Wrap(clerr.KindStoreIntegrity, "create corpus", err)
		}
		g.corpus = corpus
	}

	norm, err := normalize.New(g.c.st, g.corpus, g.reimport)
	if err != nil {
		return err
	}
	g.norm = norm
	return nil
}

func (g *ingest) onBatch(msgs []event.Message) error {
	if g.norm == nil {
		return clerr.New(clerr.KindInternal, "messages event before meta")
	}
	g.summary.MessagesProcessed += int64(len(msgs))

	batch, warnings, err := g.norm.Batch(msgs)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		g.c.logger.Warn("normalization warning", "code", w.Code, "detail", w.Message)
	}
	g.summary.Warnings = append(g.summary.Warnings, warnings...)

	if err := g.c.st.CommitBatch(batch); err != nil {
		return clerr.Wrap(clerr.KindStoreIntegrity, "write batch", err)
	}
	g.summary.MessagesAdded += int64(len(batch.Messages))
	g.summary.MessagesSkipped = g.norm.Skipped()

	// The batch boundary is the natural reporting point; the 1000-message /
	// 250 ms bound is a floor, not a ceiling.
	g.report(event.Progress{
		Phase:             event.PhaseWriting,
		MessagesProcessed: g.summary.MessagesProcessed,
	}, true)
	return nil
}

// finish runs the post-stream work: reply binding, chat-type settlement,
// time bounds, and clearing a stale partial flag.
func (g *ingest) finish() error {
	chatType, bound, err := g.norm.Finish(*g.meta)
	if err != nil {
		return clerr.Wrap(clerr.KindStoreIntegrity, "finish import", err)
	}
	g.summary.RepliesBound = bound
	g.summary.MemberCount = g.norm.MemberCount()

	if string(chatType) != g.corpus.ChatType {
		if err := g.c.st.SetChatType(g.corpus.ID, string(chatType)); err != nil {
			return fmt.Errorf("set chat type: %w", err)
		}
	}
	if err := g.c.st.RefreshTimeBounds(g.corpus.ID); err != nil {
		return fmt.Errorf("refresh time bounds: %w", err)
	}
	if err := g.c.st.MarkPartial(g.corpus.ID, false); err != nil {
		return fmt.Errorf("clear partial flag: %w", err)
	}

	if dangling, err := g.c.st.CountDanglingReplies(g.corpus.ID); err == nil && dangling > 0 {
		g.summary.Warnings = append(g.summary.Warnings, normalize.Warning{
			Code:    "dangling_replies",
			Message: fmt.Sprintf("%d replies reference messages that never arrived", dangling),
		})
	}
	return nil
}
