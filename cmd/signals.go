package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"devcrew/chat"
)

// interruptible returns a context cancelled by SIGTERM or a second SIGINT.
// The first SIGINT is forwarded as a chat interrupt instead, so a running
// chat can hand the turn to its admin.
func interruptible(parent context.Context) (context.Context, chat.Stepper, func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(parent)
	interrupts := make(chan struct{}, 1)
	go forwardSignals(ctx, sigs, interrupts, cancel, os.Stderr)

	return ctx, chat.AsyncStepper{Interrupts: interrupts}, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func forwardSignals(ctx context.Context, sigs <-chan os.Signal, interrupts chan<- struct{}, cancel context.CancelFunc, out io.Writer) {
	forwarded := false
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if sig == os.Interrupt && !forwarded {
				forwarded = true
				select {
				case interrupts <- struct{}{}:
				default:
				}
				fmt.Fprintln(out, "\nInterrupted: handing the turn to the chat admin (Ctrl+C again to stop)")
				continue
			}
			cancel()
			return
		}
	}
}
