// Package main provides the mirror-launcher entry point.
//
// mirror-launcher is the stable shim a scheduler or desktop shortcut
// points at. It finds the go-folder-mirror binary in its own
// directory, runs it with --run-backup and the working directory
// pinned there, then exits with the child's status. The backup binary
// can be replaced or upgraded without touching the scheduled task.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/randomizedcoder/go-folder-mirror/internal/launcher"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A terminal interrupt reaches the child through the shared
	// process group; this context covers SIGTERM delivered to the
	// launcher alone, which is relayed to the child with a grace
	// period before the hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return launcher.Main(ctx, os.Stdout, os.Stderr)
}
