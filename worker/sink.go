package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	flume "github.com/corvalt/flume"
	"github.com/corvalt/flume/filesink"
)

const defaultInboxDepth = 128

// State is the engine-side view of the worker protocol.
type State int32

const (
	StateStarting State = iota
	StateAwaitingHandshake
	StateReady
	StateCleanRequested
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateReady:
		return "ready"
	case StateCleanRequested:
		return "clean-requested"
	case StateCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// guardState tracks a complete-exactly-once signal explicitly rather
// than relying on any runtime's idempotent resolution semantics.
type guardState int

const (
	guardPending guardState = iota
	guardResolved
	guardHandled // a duplicate signal was observed and ignored
)

// completion is a one-shot signal with an explicit tri-state guard.
// All access goes through the owning Sink's mutex.
type completion struct {
	state guardState
	err   error
	done  chan struct{}
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

// resolve completes the signal at most once. A duplicate resolution is
// recorded as handled and reported false.
func (c *completion) resolve(err error) bool {
	if c.state != guardPending {
		c.state = guardHandled
		return false
	}
	c.state = guardResolved
	c.err = err
	close(c.done)
	return true
}

// Config describes one worker-backed sink.
type Config struct {
	// File is forwarded to the worker in the configuration message.
	File filesink.Config
	// InboxDepth bounds the command channel; zero selects the default.
	InboxDepth int
	// OnError receives reported (never thrown) worker failures: write
	// faults, unexpected exits, late signals. Defaults to stderr.
	OnError func(err error)
}

// Sink is the engine-side half of the worker protocol. It implements
// flume.Sink by forwarding records over the command channel and
// flume.Cleaner through the cooperative shutdown handshake.
type Sink struct {
	id  uuid.UUID
	cfg Config

	mu     sync.Mutex
	state  State
	inbox  chan command
	failed error // set on abnormal exit after handshake

	handshake *completion
	clean     *completion

	onError func(error)
}

// Start validates the configuration, spawns the worker unit and the
// lifecycle monitor, and returns immediately; the handshake completes
// in the background. Misconfiguration is the one failure that surfaces
// synchronously.
func Start(cfg Config) (*Sink, error) {
	if err := cfg.File.Validate(); err != nil {
		return nil, err
	}
	if cfg.InboxDepth <= 0 {
		cfg.InboxDepth = defaultInboxDepth
	}

	w := &Sink{
		id:        uuid.New(),
		cfg:       cfg,
		state:     StateStarting,
		handshake: newCompletion(),
		clean:     newCompletion(),
		onError:   cfg.OnError,
	}
	if w.onError == nil {
		w.onError = func(err error) {
			fmt.Fprintf(os.Stderr, "worker %s: %v\n", w.id, err)
		}
	}

	lifecycle := make(chan event, 16)
	w.state = StateAwaitingHandshake
	go run(lifecycle, cfg.InboxDepth)
	go w.monitor(lifecycle)
	return w, nil
}

// ID returns the worker instance identity.
func (w *Sink) ID() uuid.UUID {
	return w.id
}

// State returns the current protocol state.
func (w *Sink) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Accepts implements flume.Sink using the configured level filter.
func (w *Sink) Accepts(level flume.Level) bool {
	return level.AtLeast(w.cfg.File.MinLevel)
}

// Handle waits for the handshake, then sends the record over the
// command channel. It resolves once the record is accepted onto the
// channel, not once it is durably written; durability is guaranteed
// only after a subsequent Clean completes.
func (w *Sink) Handle(ctx context.Context, rec flume.Record) error {
	select {
	case <-w.handshake.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	err := w.handshake.err
	if err == nil {
		err = w.failed
	}
	state := w.state
	inbox := w.inbox
	w.mu.Unlock()

	if err != nil {
		return err
	}
	if state != StateReady {
		return fmt.Errorf("worker: not accepting records in state %s", state)
	}
	return w.send(ctx, inbox, recordCmd{rec: rec})
}

// send places a command on the inbox, converting a send on a released
// channel into an error instead of a panic.
func (w *Sink) send(ctx context.Context, inbox chan command, cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: command channel closed")
		}
	}()
	select {
	case inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clean requests cooperative shutdown. Concurrent and repeated calls
// share the same pending result; none of them is left with an orphaned
// wait handle.
func (w *Sink) Clean(ctx context.Context) error {
	select {
	case <-w.handshake.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	if w.handshake.err != nil {
		// The worker never came up; there is nothing to shut down.
		if w.clean.state == guardPending {
			w.state = StateCleaned
			w.clean.resolve(nil)
		}
		w.mu.Unlock()
		return nil
	}
	issueShutdown := false
	var inbox chan command
	if w.state == StateReady {
		w.state = StateCleanRequested
		issueShutdown = true
		inbox = w.inbox
	}
	// StateCleanRequested: an earlier clean is pending, share its
	// result. StateCleaned: the wait below returns immediately.
	w.mu.Unlock()

	if issueShutdown {
		if err := w.send(ctx, inbox, shutdownCmd{}); err != nil {
			return err
		}
	}

	select {
	case <-w.clean.done:
		w.mu.Lock()
		err := w.clean.err
		w.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// monitor consumes lifecycle events until the worker closes the
// channel.
func (w *Sink) monitor(lifecycle <-chan event) {
	for ev := range lifecycle {
		switch ev := ev.(type) {
		case announceEvent:
			w.handleAnnounce(ev)
		case cleanedEvent:
			w.handleCleaned()
		case faultedEvent:
			w.onError(ev.err)
		case exitedEvent:
			w.handleExit(ev)
		}
	}
}

// handleAnnounce completes the initialization handshake: store the
// command channel, push the configuration, then resolve. Configuration
// is sent before resolving so the worker always processes configure
// ahead of any record submitted through Handle.
func (w *Sink) handleAnnounce(ev announceEvent) {
	w.mu.Lock()
	if w.handshake.state != guardPending {
		// Duplicate or late handshake signal: never re-resolve.
		w.handshake.resolve(nil)
		w.mu.Unlock()
		return
	}
	w.inbox = ev.inbox
	w.state = StateReady
	w.mu.Unlock()

	ev.inbox <- configureCmd{sink: w.cfg.File}

	w.mu.Lock()
	w.handshake.resolve(nil)
	w.mu.Unlock()
}

// handleCleaned acknowledges shutdown completion and releases the
// command channel. Duplicate acknowledgments are no-ops.
func (w *Sink) handleCleaned() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.clean.state != guardPending {
		w.clean.resolve(nil)
		return
	}
	w.state = StateCleaned
	w.inbox = nil
	w.clean.resolve(nil)
}

// handleExit routes an abnormal termination by protocol state: before
// the handshake it fails the acknowledgment so Handle callers are not
// left hanging forever; during a requested clean it fails the clean
// result; after Cleaned it is expected and only logged; anywhere else
// it is unexpected but never fatal to the engine.
func (w *Sink) handleExit(ev exitedEvent) {
	err := ev.err
	if ev.stack != "" {
		err = fmt.Errorf("%w\n%s", ev.err, ev.stack)
	}

	w.mu.Lock()
	switch {
	case w.handshake.state == guardPending:
		w.state = StateCleaned
		w.handshake.resolve(err)
		w.clean.resolve(nil)
		w.mu.Unlock()
		w.onError(fmt.Errorf("worker: exited before handshake: %w", err))
	case w.state == StateCleanRequested && w.clean.state == guardPending:
		w.state = StateCleaned
		w.failed = err
		w.clean.resolve(err)
		w.mu.Unlock()
		w.onError(fmt.Errorf("worker: exited during shutdown: %w", err))
	case w.state == StateCleaned:
		w.mu.Unlock()
		w.onError(fmt.Errorf("worker: exit after clean (benign): %v", ev.err))
	default:
		// The worker is gone, so there is nothing left to shut down.
		// Settle the clean signal now or a later Clean would wait on a
		// dead worker forever.
		w.failed = err
		w.state = StateCleaned
		w.clean.resolve(nil)
		w.mu.Unlock()
		w.onError(fmt.Errorf("worker: unexpected exit: %w", err))
	}
}
