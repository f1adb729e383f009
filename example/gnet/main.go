package main

import (
	"context"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/corvalt/flume/bootstrap"
	"github.com/corvalt/flume/compat"
)

type echoServer struct {
	gnet.BuiltinEventEngine
}

func (es *echoServer) OnTraffic(c gnet.Conn) gnet.Action {
	buf, _ := c.Next(-1)
	c.Write(buf)
	return gnet.None
}

func main() {
	engine, err := bootstrap.NewBuilder().
		Level("debug").
		EnableConsole(false).
		EnableFile(true).
		Directory("/var/log/gnet").
		FilePrefix("echo").
		MaxFileSizeMB(10).
		MaxFileCount(5).
		Compress(true).
		Build()
	if err != nil {
		panic(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Destroy(ctx)
	}()

	adapter := compat.NewGnetAdapter(engine)

	err = gnet.Run(
		&echoServer{},
		"tcp://127.0.0.1:9000",
		gnet.WithMulticore(true),
		gnet.WithLogger(adapter),
		gnet.WithReusePort(true),
	)
	if err != nil {
		panic(err)
	}
}
