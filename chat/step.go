package chat

import "context"

// Stepper carries out one suspendable step of the run loop: a speaker
// selection or a reply generation. Implementations differ only in how they
// wait; steps never overlap.
type Stepper interface {
	Step(ctx context.Context, fn func(ctx context.Context) error) error
}

// SyncStepper calls each step directly on the caller's goroutine. Pending
// interrupts are observed before the step, so a finished step is never
// discarded.
type SyncStepper struct {
	Interrupts <-chan struct{}
}

func (s SyncStepper) Step(ctx context.Context, fn func(ctx context.Context) error) error {
	if interrupted(s.Interrupts) {
		return ErrInterrupted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// AsyncStepper runs each step on its own goroutine and awaits it, so an
// interrupt or a cancelled context preempts a blocked step. The step's
// context is cancelled and the goroutine is drained before returning.
type AsyncStepper struct {
	Interrupts <-chan struct{}
}

func (s AsyncStepper) Step(ctx context.Context, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-s.Interrupts:
		cancel()
		<-done
		return ErrInterrupted
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func interrupted(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
