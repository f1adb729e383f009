package flume

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	// defaultBatchSize bounds how many records one drain iteration pops.
	defaultBatchSize = 100
	// failureBufferSize is the per-subscriber failure channel depth.
	failureBufferSize = 64
)

// Engine owns the record queue, the sink set, and the drain loop. It is
// the only component callers talk to directly. Log never blocks; records
// are drained in bounded batches by at most one drain goroutine at a
// time, and sink failures are reported on the failure broadcast instead
// of propagating to callers.
type Engine struct {
	mu        sync.Mutex
	queue     []Record
	sinks     []Sink
	draining  bool          // drain token: at most one loop active
	drainDone chan struct{} // closed when the active loop exits

	batchSize  atomic.Int64
	destroying atomic.Bool
	destroyed  chan struct{}

	subMu      sync.Mutex
	subs       []chan Failure
	subsClosed bool

	diagnostics bool // mirror internal errors to stderr
}

// NewEngine constructs an idle engine with the default batch size.
// Sinks are attached with AddSink; the drain loop starts on demand.
func NewEngine() *Engine {
	e := &Engine{
		destroyed: make(chan struct{}),
	}
	e.batchSize.Store(defaultBatchSize)
	return e
}

// SetBatchSize changes the per-iteration batch limit. Takes effect on
// the next batch. Non-positive values fall back to the default.
func (e *Engine) SetBatchSize(n int64) {
	if n <= 0 {
		n = defaultBatchSize
	}
	e.batchSize.Store(n)
}

// BatchSize returns the current per-iteration batch limit.
func (e *Engine) BatchSize() int64 {
	return e.batchSize.Load()
}

// SetDiagnostics enables mirroring of internal engine errors to stderr.
func (e *Engine) SetDiagnostics(enabled bool) {
	e.diagnostics = enabled
}

// AddSink registers a sink. Adding a sink that is already present (by
// identity) is a no-op. If the queue is non-empty and no drain is
// active, a drain loop is started.
func (e *Engine) AddSink(s Sink) {
	if s == nil || e.destroying.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.sinks {
		if existing == s {
			return
		}
	}
	e.sinks = append(e.sinks, s)
	e.startDrainLocked()
}

// RemoveSink removes a sink by identity and reports whether it was
// present. An in-flight Handle call already dispatched to that sink for
// the current batch is not cancelled.
func (e *Engine) RemoveSink(s Sink) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.sinks {
		if existing == s {
			e.sinks = append(e.sinks[:i], e.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// Sinks returns the number of registered sinks.
func (e *Engine) Sinks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sinks)
}

// Pending returns the number of queued, not yet dispatched records.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Log constructs a record and enqueues it. Enqueue always succeeds and
// never blocks; after Destroy has been called records are silently
// dropped. An invalid record (fatal with no error payload) is reported
// and dropped.
func (e *Engine) Log(level Level, message string, opts ...RecordOption) {
	if e.destroying.Load() {
		return
	}
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}
	rec, err := NewRecord(level, message, o.err, o.stack, o.fatal)
	if err != nil {
		e.report(err, "record construction")
		return
	}
	e.enqueue(rec)
}

// Debug logs a message at debug level.
func (e *Engine) Debug(message string, opts ...RecordOption) {
	e.Log(LevelDebug, message, opts...)
}

// Info logs a message at info level.
func (e *Engine) Info(message string, opts ...RecordOption) {
	e.Log(LevelInfo, message, opts...)
}

// Warning logs a message at warning level.
func (e *Engine) Warning(message string, opts ...RecordOption) {
	e.Log(LevelWarning, message, opts...)
}

// Success logs a message at success level.
func (e *Engine) Success(message string, opts ...RecordOption) {
	e.Log(LevelSuccess, message, opts...)
}

// Error logs a message at error level.
func (e *Engine) Error(message string, opts ...RecordOption) {
	e.Log(LevelError, message, opts...)
}

func (e *Engine) enqueue(rec Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, rec)
	e.startDrainLocked()
}

// startDrainLocked spawns a drain loop if none is active and there is
// work to do. Caller must hold e.mu. The draining flag is the single
// drain token: it guarantees two loops never run concurrently and
// double-process the queue.
func (e *Engine) startDrainLocked() {
	if e.draining || len(e.queue) == 0 || len(e.sinks) == 0 {
		return
	}
	e.draining = true
	done := make(chan struct{})
	e.drainDone = done
	go e.drain(done)
}

// drain pops bounded batches until the queue empties or the sink set
// becomes empty, then releases the drain token. Each iteration works
// against a private snapshot of the sink set: sinks added mid-batch take
// effect on the next batch, removed sinks still receive records already
// scheduled in the current batch.
func (e *Engine) drain(done chan struct{}) {
	defer close(done)
	for {
		e.mu.Lock()
		if len(e.queue) == 0 || len(e.sinks) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		n := int(e.batchSize.Load())
		if n > len(e.queue) {
			n = len(e.queue)
		}
		batch := make([]Record, n)
		copy(batch, e.queue[:n])
		e.queue = e.queue[n:]
		snapshot := make([]Sink, len(e.sinks))
		copy(snapshot, e.sinks)
		e.mu.Unlock()

		e.dispatch(context.Background(), batch, snapshot)
	}
}

// dispatch offers each record to every accepting sink in snapshot
// order, awaiting each Handle before the next. A sink never observes
// record N+1 before every sink has finished record N.
func (e *Engine) dispatch(ctx context.Context, batch []Record, sinks []Sink) {
	for _, rec := range batch {
		for _, s := range sinks {
			if !s.Accepts(rec.Level) {
				continue
			}
			if err := handleSafely(ctx, s, rec); err != nil {
				e.report(err, "sink handle")
			}
		}
	}
}

// handleSafely contains a panicking sink so one bad implementation
// cannot take down the drain loop.
func handleSafely(ctx context.Context, s Sink, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmtErrorf("sink panicked: %v", r)
		}
	}()
	return s.Handle(ctx, rec)
}

// Subscribe returns a channel of sink failures. Delivery to a
// subscriber never blocks production: a full channel drops the failure
// for that subscriber. All channels are closed exactly once by Destroy.
func (e *Engine) Subscribe() <-chan Failure {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	ch := make(chan Failure, failureBufferSize)
	if e.subsClosed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

func (e *Engine) report(err error, context string) {
	internalLog(e.diagnostics, "%s: %v\n", context, err)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.subsClosed {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- Failure{Err: err, Context: context}:
		default:
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.subsClosed {
		return
	}
	e.subsClosed = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}

// Destroy shuts the engine down: subsequent Log calls are dropped, the
// active drain loop is awaited, every remaining queued record is
// drained through a snapshot of the current sinks in one full batch,
// Clean is invoked on each sink exposing it, the sink set is cleared,
// and the failure broadcast is closed. The first caller gets the
// combined clean errors, if any. Destroy is idempotent; repeated or
// concurrent calls wait for the first to finish and return nil.
func (e *Engine) Destroy(ctx context.Context) error {
	if !e.destroying.CompareAndSwap(false, true) {
		<-e.destroyed
		return nil
	}

	// Wait out the active drain loop; Log is already dropping, so the
	// loop terminates once its current queue view empties. A hung sink
	// stalls here indefinitely, which is the documented trade-off.
	e.mu.Lock()
	done := e.drainDone
	active := e.draining
	e.mu.Unlock()
	if active {
		<-done
	}

	// Full force-drain of whatever is left, bypassing the batch limit.
	e.mu.Lock()
	rest := e.queue
	e.queue = nil
	snapshot := make([]Sink, len(e.sinks))
	copy(snapshot, e.sinks)
	e.mu.Unlock()
	e.dispatch(ctx, rest, snapshot)

	var cleanErr error
	for _, s := range snapshot {
		if c, ok := s.(Cleaner); ok {
			if err := c.Clean(ctx); err != nil {
				e.report(err, "sink clean")
				cleanErr = combineErrors(cleanErr, err)
			}
		}
	}

	e.mu.Lock()
	e.sinks = nil
	e.mu.Unlock()

	e.closeSubscribers()
	close(e.destroyed)
	return cleanErr
}
