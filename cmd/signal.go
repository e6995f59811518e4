package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// contextWithCancelOnInterrupt returns a context cancelled on SIGINT or
// SIGTERM.
func contextWithCancelOnInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
