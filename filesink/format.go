package filesink

import (
	"bytes"
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"

	flume "github.com/corvalt/flume"
)

// Formatter renders records as single text lines for the file sink.
// The buffer is reused across calls; the worker's sequential processing
// loop is the only caller.
type Formatter struct {
	timestampFormat string
	buf             []byte
}

// NewFormatter creates a formatter with RFC3339Nano timestamps.
func NewFormatter() *Formatter {
	return &Formatter{
		timestampFormat: time.RFC3339Nano,
		buf:             make([]byte, 0, 1024),
	}
}

// TimestampFormat overrides the timestamp layout.
func (f *Formatter) TimestampFormat(layout string) *Formatter {
	if layout != "" {
		f.timestampFormat = layout
	}
	return f
}

// Format renders one record, trailing newline included. The returned
// slice is valid until the next Format call.
func (f *Formatter) Format(rec flume.Record) []byte {
	f.buf = f.buf[:0]
	f.buf = rec.CreatedAt.AppendFormat(f.buf, f.timestampFormat)
	f.buf = append(f.buf, ' ')
	f.buf = append(f.buf, rec.Level.String()...)
	if rec.Fatal {
		f.buf = append(f.buf, " FATAL"...)
	}
	f.buf = append(f.buf, ' ')
	f.buf = append(f.buf, rec.Message...)
	if rec.Err != nil {
		f.buf = append(f.buf, " error="...)
		f.buf = appendOpaque(f.buf, rec.Err)
	}
	if rec.StackTrace != nil {
		f.buf = append(f.buf, " stack="...)
		f.buf = appendOpaque(f.buf, rec.StackTrace)
	}
	f.buf = append(f.buf, '\n')
	return f.buf
}

// appendOpaque renders an opaque error/stack payload. Strings, errors,
// and Stringers print directly; anything else gets a compact spew dump
// so structured payloads stay readable.
func appendOpaque(buf []byte, v any) []byte {
	switch val := v.(type) {
	case string:
		return append(buf, val...)
	case error:
		return append(buf, val.Error()...)
	case fmt.Stringer:
		return append(buf, val.String()...)
	default:
		var b bytes.Buffer
		dumper := &spew.ConfigState{
			Indent:                  " ",
			MaxDepth:                10,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		}
		dumper.Fdump(&b, val)
		return append(buf, bytes.TrimSpace(b.Bytes())...)
	}
}
