package compat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flume "github.com/corvalt/flume"
)

// captureSink collects records delivered through the engine.
type captureSink struct {
	mu      sync.Mutex
	records []flume.Record
}

func (c *captureSink) Accepts(flume.Level) bool { return true }

func (c *captureSink) Handle(_ context.Context, rec flume.Record) error {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) drained(t *testing.T, e *flume.Engine) []flume.Record {
	require.NoError(t, e.Destroy(context.Background()))
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]flume.Record, len(c.records))
	copy(out, c.records)
	return out
}

func newCaptureEngine() (*flume.Engine, *captureSink) {
	e := flume.NewEngine()
	sink := &captureSink{}
	e.AddSink(sink)
	return e, sink
}

func TestDetectLogLevel(t *testing.T) {
	tests := []struct {
		msg    string
		want   flume.Level
		wantOK bool
	}{
		{"connection error occurred", flume.LevelError, true},
		{"request FAILED", flume.LevelError, true},
		{"warning: something odd", flume.LevelWarning, true},
		{"deprecated API call", flume.LevelWarning, true},
		{"debug: trace enabled", flume.LevelDebug, true},
		{"plain status message", flume.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := DetectLogLevel(tt.msg)
		assert.Equal(t, tt.want, got, tt.msg)
		assert.Equal(t, tt.wantOK, ok, tt.msg)
	}
}

func TestFastHTTPAdapterPrintf(t *testing.T) {
	engine, sink := newCaptureEngine()
	adapter := NewFastHTTPAdapter(engine)

	adapter.Printf("serving %s", "requests")
	adapter.Printf("error when dialing %s", "upstream")

	records := sink.drained(t, engine)
	require.Len(t, records, 2)
	assert.Equal(t, flume.LevelInfo, records[0].Level)
	assert.Equal(t, "[fasthttp] serving requests", records[0].Message)
	assert.Equal(t, flume.LevelError, records[1].Level)
}

func TestFastHTTPAdapterOptions(t *testing.T) {
	engine, sink := newCaptureEngine()
	adapter := NewFastHTTPAdapter(engine,
		WithDefaultLevel(flume.LevelDebug),
		WithLevelDetector(func(string) (flume.Level, bool) {
			return flume.LevelInfo, false
		}))

	adapter.Printf("anything")

	records := sink.drained(t, engine)
	require.Len(t, records, 1)
	assert.Equal(t, flume.LevelDebug, records[0].Level)
}

func TestGnetAdapterLevels(t *testing.T) {
	engine, sink := newCaptureEngine()
	adapter := NewGnetAdapter(engine)

	adapter.Debugf("d %d", 1)
	adapter.Infof("i %d", 2)
	adapter.Warnf("w %d", 3)
	adapter.Errorf("e %d", 4)

	records := sink.drained(t, engine)
	require.Len(t, records, 4)
	assert.Equal(t, flume.LevelDebug, records[0].Level)
	assert.Equal(t, "[gnet] d 1", records[0].Message)
	assert.Equal(t, flume.LevelInfo, records[1].Level)
	assert.Equal(t, flume.LevelWarning, records[2].Level)
	assert.Equal(t, flume.LevelError, records[3].Level)
}

func TestGnetAdapterFatalf(t *testing.T) {
	engine, sink := newCaptureEngine()

	var fatalMsg string
	adapter := NewGnetAdapter(engine, WithFatalHandler(func(msg string) {
		fatalMsg = msg
	}))

	adapter.Fatalf("unrecoverable: %v", "listen failed")

	// Fatalf destroys the engine itself, so the record is already
	// flushed by the time the handler runs.
	assert.Equal(t, "[gnet] unrecoverable: listen failed", fatalMsg)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].Fatal)
	assert.Equal(t, flume.LevelError, sink.records[0].Level)
}
