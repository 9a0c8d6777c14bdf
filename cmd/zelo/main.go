package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sudooom.im.client/internal/cli"
)

func main() {
	// 优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx)
}
