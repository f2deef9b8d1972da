package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// SignalError is the cancellation cause of a SignalContext stopped by the OS.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return "received signal " + e.Signal.String()
}

// SignalContext is cancelled on SIGINT or SIGTERM and remembers which signal
// arrived, unlike signal.NotifyContext.
type SignalContext struct {
	context.Context
	cancel context.CancelCauseFunc
}

// NewSignalContext starts watching for shutdown signals until the returned
// context is done. Callers must call Cancel.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		}
	}()
	return &SignalContext{Context: ctx, cancel: cancel}
}

// Cancel releases the context and stops signal delivery.
func (sc *SignalContext) Cancel() {
	sc.cancel(nil)
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	var se *SignalError
	if errors.As(context.Cause(sc.Context), &se) {
		return se.Signal
	}
	return nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
