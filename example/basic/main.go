package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	flume "github.com/corvalt/flume"
	"github.com/corvalt/flume/bootstrap"
)

func main() {
	// Assemble a pipeline: console plus a redacted rotating file sink.
	engine, err := bootstrap.NewBuilder().
		Level("debug").
		EnableConsole(true).
		EnableFile(true).
		Directory("./logs").
		FilePrefix("basic").
		MaxFileSizeKB(256).
		MaxFileCount(3).
		Compress(true).
		EnableRedaction(true).
		Passphrase("correct horse battery staple").
		Build()
	if err != nil {
		panic(err)
	}

	// Watch for sink failures without ever blocking the hot path.
	failures := engine.Subscribe()
	go func() {
		for f := range failures {
			fmt.Printf("sink failure (%s): %v\n", f.Context, f.Err)
		}
	}()

	engine.Debug("starting up")
	engine.Info("user login with password=hunter2 succeeded")
	engine.Success("checkout complete for alice@example.com")
	engine.Warning("disk usage above 80%")
	engine.Error("payment declined",
		flume.WithError(errors.New("insufficient funds")))

	// Destroy flushes every pending record before releasing the sinks.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Destroy(ctx); err != nil {
		panic(err)
	}
}
