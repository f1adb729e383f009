package flume

import (
	"time"

	"github.com/agilira/go-timecache"
)

// clock is a millisecond-resolution cached clock shared by all engines.
// Record creation sits on the logging hot path, so timestamps come from
// the cache rather than time.Now().
var clock = timecache.NewWithResolution(time.Millisecond)

// Record is a single immutable log entry. It is created once per log
// call and never mutated; transforms that rewrite the message produce a
// new Record via WithMessage.
type Record struct {
	Level      Level
	Message    string
	Err        any // opaque error payload, nil when absent
	StackTrace any // opaque stack payload, nil when absent
	Fatal      bool
	CreatedAt  time.Time
}

// NewRecord constructs a Record with the current cached timestamp.
// A fatal record without an error payload is rejected.
func NewRecord(level Level, message string, err, stack any, fatal bool) (Record, error) {
	if fatal && err == nil {
		return Record{}, fmtErrorf("fatal record requires an error payload")
	}
	return Record{
		Level:      level,
		Message:    message,
		Err:        err,
		StackTrace: stack,
		Fatal:      fatal,
		CreatedAt:  clock.CachedTime(),
	}, nil
}

// WithMessage returns a copy of the record carrying a rewritten message.
// Every other field, including the original timestamp, is preserved.
func (r Record) WithMessage(message string) Record {
	out := r
	out.Message = message
	return out
}

// RecordOption customizes a record constructed by Engine.Log.
type RecordOption func(*recordOptions)

type recordOptions struct {
	err   any
	stack any
	fatal bool
}

// WithError attaches an opaque error payload to the record.
func WithError(err any) RecordOption {
	return func(o *recordOptions) { o.err = err }
}

// WithStack attaches an opaque stack-trace payload to the record.
func WithStack(stack any) RecordOption {
	return func(o *recordOptions) { o.stack = stack }
}

// AsFatal marks the record fatal. Fatal records must also carry an
// error payload via WithError.
func AsFatal() RecordOption {
	return func(o *recordOptions) { o.fatal = true }
}
