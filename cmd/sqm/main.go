// Command sqm runs metagenomic analysis projects: it plans the numbered
// pipeline steps for a project's mode, drives the external tools behind
// them and records progress so that an interrupted project can be resumed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
