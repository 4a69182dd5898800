// Package parser implements the per-format chat export parsers.
//
// Every parser, regardless of source format, exposes the same operation:
// given a path and options it emits the uniform event stream defined in
// internal/event — one meta event, one members event, message batches with
// interleaved progress, and a terminal done or error event. Parsers are
// streaming: memory use is bounded by the batch size and file buffers,
// never by file size.
package parser

import (
	"context"
	"os"
	"time"

	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/sniff"
)

// Options configures a parse run.
type Options struct {
	// BatchSize is the maximum number of messages per emitted batch.
	BatchSize int

	// Location is the timezone used to interpret wall-clock timestamps in
	// the export. Nil means the host local zone.
	Location *time.Location

	// RecordError is invoked for each record that could not be parsed.
	// Such records are skipped, never fatal. Nil disables reporting.
	RecordError func(line int, err error)
}

func (o Options) recordError(line int, err error) {
	if o.RecordError != nil {
		o.RecordError(line, err)
	}
}

// DefaultBatchSize is used when Options.BatchSize is zero.
const DefaultBatchSize = 500

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// ParseFunc parses the file at path, emitting events into sink. An error
// returned from the sink aborts the parse and is propagated unchanged.
type ParseFunc func(ctx context.Context, path string, opts Options, sink event.Sink) error

// Parser couples a sniffer descriptor with its parse function.
type Parser struct {
	Descriptor sniff.Descriptor
	Parse      ParseFunc
}

// All returns the built-in parser set, one entry per supported format.
func All() []Parser {
	return []Parser{
		chatlabJSONParser(),
		chatlabJSONLParser(),
		lineTXTParser(),
		qqTXTParser(),
		wechatJSONParser(),
		exportToolTXTParser(),
	}
}

// NewRegistry builds a sniffer registry over the built-in parsers and a
// lookup from descriptor id to parse function.
func NewRegistry() (*sniff.Registry, map[string]ParseFunc) {
	reg := sniff.NewRegistry()
	funcs := make(map[string]ParseFunc)
	for _, p := range All() {
		reg.Register(p.Descriptor)
		funcs[p.Descriptor.ID] = p.Parse
	}
	return reg, funcs
}

// batcher accumulates parsed messages and flushes them as batch events,
// emitting a progress event at every flush (the batch boundary is also the
// parser's suspension point, so ctx is checked here too).
type batcher struct {
	ctx        context.Context
	sink       event.Sink
	size       int
	buf        []event.Message
	count      int64
	totalBytes int64
	offset     func() int64
}

func newBatcher(ctx context.Context, sink event.Sink, size int, totalBytes int64, offset func() int64) *batcher {
	return &batcher{
		ctx:        ctx,
		sink:       sink,
		size:       size,
		buf:        make([]event.Message, 0, size),
		totalBytes: totalBytes,
		offset:     offset,
	}
}

func (b *batcher) add(m event.Message) error {
	b.buf = append(b.buf, m)
	b.count++
	if len(b.buf) >= b.size {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	if len(b.buf) == 0 {
		return nil
	}
	batch := make([]event.Message, len(b.buf))
	copy(batch, b.buf)
	b.buf = b.buf[:0]
	if err := b.sink(event.MessagesEvent(batch)); err != nil {
		return err
	}
	var processed int64
	if b.offset != nil {
		processed = b.offset()
	}
	return b.sink(event.ProgressEvent(event.Progress{
		Phase:             event.PhaseParsing,
		BytesProcessed:    processed,
		TotalBytes:        b.totalBytes,
		MessagesProcessed: b.count,
	}))
}

// done flushes the final partial batch and emits the terminal done event.
func (b *batcher) done(memberCount int64) error {
	if err := b.flush(); err != nil {
		return err
	}
	return b.sink(event.DoneEvent(event.Done{
		MessageCount: b.count,
		MemberCount:  memberCount,
	}))
}

// fileSize returns the size of the file at path, or 0 when unknown.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
