package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	flume "github.com/corvalt/flume"
	"github.com/corvalt/flume/filesink"
)

// run is the worker-side actor. It executes on its own goroutine,
// shares no state with the engine side, and talks only through the two
// channels: it announces its inbox on the lifecycle channel, then loops
// over inbound commands one at a time, so the file handle is never
// touched concurrently.
//
// Records that arrive before the configuration message are held in a
// pending buffer and flushed into the real sink, in arrival order, the
// moment configuration lands. Nothing is dropped and nothing errors for
// being early.
func run(lifecycle chan<- event, inboxDepth int) {
	defer close(lifecycle)
	defer func() {
		if r := recover(); r != nil {
			lifecycle <- exitedEvent{
				err:   fmt.Errorf("worker: panic: %v", r),
				stack: string(debug.Stack()),
			}
		}
	}()

	inbox := make(chan command, inboxDepth)
	lifecycle <- announceEvent{inbox: inbox}

	ctx := context.Background()
	var sink *filesink.Sink
	var pending []flume.Record

	for cmd := range inbox {
		switch cmd := cmd.(type) {
		case configureCmd:
			if sink != nil {
				continue // duplicate configuration
			}
			s, err := filesink.New(cmd.sink)
			if err != nil {
				lifecycle <- exitedEvent{err: fmt.Errorf("worker: sink construction failed: %w", err)}
				return
			}
			sink = s
			for _, rec := range pending {
				if errHandle := sink.Handle(ctx, rec); errHandle != nil {
					lifecycle <- faultedEvent{err: errHandle}
				}
			}
			pending = nil

		case recordCmd:
			if sink == nil {
				pending = append(pending, cmd.rec)
				continue
			}
			if err := sink.Handle(ctx, cmd.rec); err != nil {
				lifecycle <- faultedEvent{err: err}
			}

		case shutdownCmd:
			if sink != nil {
				if err := sink.Clean(ctx); err != nil {
					lifecycle <- faultedEvent{err: err}
				}
			}
			lifecycle <- cleanedEvent{}
			// The inbox is abandoned, not closed: the engine side may
			// still race a late send, which it converts to an error.
			return
		}
	}
}
