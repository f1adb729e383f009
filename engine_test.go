package flume

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink is a configurable in-memory sink for engine tests.
type memSink struct {
	mu      sync.Mutex
	records []Record

	min       Level
	delay     time.Duration
	failWith  error
	panicWith any

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func newMemSink() *memSink {
	return &memSink{min: LevelDebug}
}

func (m *memSink) Accepts(level Level) bool {
	return level.AtLeast(m.min)
}

func (m *memSink) Handle(_ context.Context, rec Record) error {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		max := m.maxInFlight.Load()
		if cur <= max || m.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.failWith != nil {
		return m.failWith
	}

	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *memSink) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, rec := range m.records {
		out[i] = rec.Message
	}
	return out
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// cleanableSink counts Clean invocations.
type cleanableSink struct {
	memSink
	cleans atomic.Int64
}

func (c *cleanableSink) Clean(_ context.Context) error {
	c.cleans.Add(1)
	return nil
}

func TestEngineDeliversInOrder(t *testing.T) {
	e := NewEngine()
	sink := newMemSink()
	e.AddSink(sink)

	const n = 500
	for i := 0; i < n; i++ {
		e.Info(fmt.Sprintf("msg-%04d", i))
	}

	require.Eventually(t, func() bool {
		return sink.count() == n
	}, 2*time.Second, 5*time.Millisecond)

	msgs := sink.messages()
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%04d", i), msg)
	}
}

func TestEngineQueuesWithoutSinks(t *testing.T) {
	e := NewEngine()

	e.Info("one")
	e.Info("two")
	e.Info("three")
	assert.Equal(t, 3, e.Pending())

	// Attaching a sink releases the backlog in order.
	sink := newMemSink()
	e.AddSink(sink)

	require.Eventually(t, func() bool {
		return sink.count() == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, sink.messages())
	assert.Equal(t, 0, e.Pending())
}

func TestEngineSingleDrainLoop(t *testing.T) {
	e := NewEngine()
	sink := newMemSink()
	sink.delay = time.Millisecond
	e.AddSink(sink)

	// Hammer the queue from many goroutines; a second drain loop would
	// show up as concurrent Handle calls on the lone sink.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				e.Info(fmt.Sprintf("g%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return sink.count() == 200
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), sink.maxInFlight.Load())
}

func TestEngineSinkFailureIsolation(t *testing.T) {
	e := NewEngine()
	failing := newMemSink()
	failing.failWith = errors.New("disk full")
	panicking := newMemSink()
	panicking.panicWith = "boom"
	healthy := newMemSink()

	e.AddSink(failing)
	e.AddSink(panicking)
	e.AddSink(healthy)

	failures := e.Subscribe()

	e.Info("first")
	e.Info("second")

	require.Eventually(t, func() bool {
		return healthy.count() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Both records reached the healthy sink despite two bad peers, and
	// each bad sink produced a reported failure per record.
	seen := 0
	timeout := time.After(time.Second)
	for seen < 4 {
		select {
		case f := <-failures:
			assert.Equal(t, "sink handle", f.Context)
			seen++
		case <-timeout:
			t.Fatalf("saw %d failures, want 4", seen)
		}
	}
}

func TestEngineLevelFiltering(t *testing.T) {
	e := NewEngine()
	sink := newMemSink()
	sink.min = LevelWarning
	e.AddSink(sink)

	e.Debug("debug")
	e.Info("info")
	e.Warning("warning")
	e.Success("success")
	e.Error("error")

	require.Eventually(t, func() bool {
		return sink.count() == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"warning", "success", "error"}, sink.messages())
}

func TestEngineAddRemoveSink(t *testing.T) {
	e := NewEngine()
	a := newMemSink()
	b := newMemSink()

	e.AddSink(a)
	e.AddSink(a) // duplicate by identity, no-op
	e.AddSink(b)
	assert.Equal(t, 2, e.Sinks())

	assert.True(t, e.RemoveSink(a))
	assert.False(t, e.RemoveSink(a))
	assert.Equal(t, 1, e.Sinks())
}

func TestEngineNoLossAcrossSinkChurn(t *testing.T) {
	e := NewEngine()
	stable := newMemSink()
	e.AddSink(stable)

	churn := newMemSink()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			e.AddSink(churn)
			e.RemoveSink(churn)
		}
	}()

	const n = 300
	for i := 0; i < n; i++ {
		e.Info(fmt.Sprintf("msg-%04d", i))
	}
	<-done

	require.Eventually(t, func() bool {
		return stable.count() == n
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, fmt.Sprintf("msg-%04d", n-1), stable.messages()[n-1])
}

func TestEngineBatchSize(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, int64(defaultBatchSize), e.BatchSize())

	e.SetBatchSize(7)
	assert.Equal(t, int64(7), e.BatchSize())

	// Non-positive falls back to the default.
	e.SetBatchSize(0)
	assert.Equal(t, int64(defaultBatchSize), e.BatchSize())
	e.SetBatchSize(-3)
	assert.Equal(t, int64(defaultBatchSize), e.BatchSize())
}

func TestEngineFatalRequiresError(t *testing.T) {
	e := NewEngine()
	sink := newMemSink()
	e.AddSink(sink)
	failures := e.Subscribe()

	e.Error("no payload", AsFatal())

	select {
	case f := <-failures:
		assert.Equal(t, "record construction", f.Context)
	case <-time.After(time.Second):
		t.Fatal("expected a construction failure")
	}
	assert.Equal(t, 0, sink.count())

	// With an error payload the record goes through.
	e.Error("with payload", WithError(errors.New("fatal cause")), AsFatal())
	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	assert.True(t, sink.records[0].Fatal)
	sink.mu.Unlock()
}

func TestEngineDestroyFlushesAndCleans(t *testing.T) {
	e := NewEngine()
	sink := &cleanableSink{}
	sink.min = LevelDebug
	e.AddSink(sink)

	for i := 0; i < 50; i++ {
		e.Info(fmt.Sprintf("msg-%d", i))
	}

	require.NoError(t, e.Destroy(context.Background()))
	assert.Equal(t, 50, sink.count())
	assert.Equal(t, int64(1), sink.cleans.Load())
	assert.Equal(t, 0, e.Sinks())

	// Post-destroy logging is dropped silently.
	e.Info("late")
	assert.Equal(t, 0, e.Pending())
}

func TestEngineDestroyIdempotent(t *testing.T) {
	e := NewEngine()
	sink := &cleanableSink{}
	sink.min = LevelDebug
	e.AddSink(sink)
	e.Info("only")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Destroy(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, int64(1), sink.cleans.Load())
}

func TestEngineSubscribeAfterDestroy(t *testing.T) {
	e := NewEngine()
	before := e.Subscribe()
	require.NoError(t, e.Destroy(context.Background()))

	// The pre-destroy channel is closed, and a late Subscribe returns an
	// already closed channel instead of one that never closes.
	_, ok := <-before
	assert.False(t, ok)
	_, ok = <-e.Subscribe()
	assert.False(t, ok)
}
