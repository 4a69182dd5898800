// Package clerr defines the error kinds the chatlab core reports across the
// boundary. Every failure surfaced to a caller is classified by a Kind so the
// shell can translate it without string matching.
package clerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for boundary translation.
type Kind int

const (
	// KindInternal is an unrecoverable bug. Fatal to the job, not the process.
	KindInternal Kind = iota

	// KindIO covers missing, unreadable, or permission-denied files.
	KindIO

	// KindUnknownFormat means the sniffer found no matching descriptor.
	KindUnknownFormat

	// KindParseStructural means the format was identified but the file is
	// malformed at a level that prevents progress.
	KindParseStructural

	// KindParseRecord means a single record could not be parsed. Counted,
	// logged, skipped. Never fatal.
	KindParseRecord

	// KindNormalizationWarning covers non-fatal normalization findings such
	// as cross-batch timestamp inversion or a dangling reply.
	KindNormalizationWarning

	// KindStoreIntegrity means the store cannot be used: schema version from
	// the future or a failed migration. Fatal on open.
	KindStoreIntegrity

	// KindCanceled means cooperative cancellation completed.
	KindCanceled

	// KindTimeout means an analytics deadline expired.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindUnknownFormat:
		return "unknown_format"
	case KindParseStructural:
		return "parse_structural"
	case KindParseRecord:
		return "parse_record"
	case KindNormalizationWarning:
		return "normalization_warning"
	case KindStoreIntegrity:
		return "store_integrity"
	case KindCanceled:
		return "canceled"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is a classified error. Op names the operation that failed, in the
// same "verb object" form used for %w wrapping elsewhere.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of err. Context cancellation and deadline errors
// map to their kinds even when nobody wrapped them; anything else
// unclassified is KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsFatal reports whether an error of this kind may terminate a worker.
// All other kinds surface as typed job results.
func IsFatal(k Kind) bool {
	return k == KindInternal || k == KindStoreIntegrity
}
