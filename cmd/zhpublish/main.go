// Package main provides the zhpublish command line tool, which logs in to
// Zhihu and publishes column articles through a real browser.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/zhpublish/cmd/zhpublish/commands"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	err := commands.Execute(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
