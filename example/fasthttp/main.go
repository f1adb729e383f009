package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	flume "github.com/corvalt/flume"
	"github.com/corvalt/flume/bootstrap"
	"github.com/corvalt/flume/compat"
)

func main() {
	engine, err := bootstrap.NewBuilder().
		Level("info").
		EnableConsole(true).
		EnableFile(true).
		Directory("/var/log/fasthttp").
		FilePrefix("server").
		MaxFileSizeMB(10).
		MaxFileCount(5).
		Build()
	if err != nil {
		panic(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Destroy(ctx)
	}()

	adapter := compat.NewFastHTTPAdapter(
		engine,
		compat.WithDefaultLevel(flume.LevelInfo),
		compat.WithLevelDetector(customLevelDetector),
	)

	server := &fasthttp.Server{
		Handler: requestHandler,
		Logger:  adapter,

		Name:         "flume-example",
		Concurrency:  fasthttp.DefaultConcurrency,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		TCPKeepalive: true,
	}

	engine.Info("starting server on :8080")
	if err := server.ListenAndServe(":8080"); err != nil {
		panic(err)
	}
}

func requestHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain")
	fmt.Fprintf(ctx, "Hello, world! Path: %s\n", ctx.Path())
}

func customLevelDetector(msg string) (flume.Level, bool) {
	if strings.Contains(msg, "connection cannot be served") {
		return flume.LevelWarning, true
	}
	if strings.Contains(msg, "error when serving connection") {
		return flume.LevelError, true
	}
	return compat.DetectLogLevel(msg)
}
