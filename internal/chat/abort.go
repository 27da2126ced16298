package chat

import (
	"context"
	"sync"
	"sync/atomic"
)

// AbortFlag is the shared cancellation signal between the turn
// orchestrator, the assembler, and the upstream producer. Abort is
// idempotent and never un-fires.
type AbortFlag struct {
	fired atomic.Bool
	once  sync.Once
	done  chan struct{}
}

func NewAbortFlag() *AbortFlag {
	return &AbortFlag{done: make(chan struct{})}
}

func (f *AbortFlag) Abort() {
	f.once.Do(func() {
		f.fired.Store(true)
		close(f.done)
	})
}

func (f *AbortFlag) Aborted() bool {
	return f.fired.Load()
}

// Done closes when the flag fires; producers select on it to stop
// yielding promptly.
func (f *AbortFlag) Done() <-chan struct{} {
	return f.done
}

// AbortOnDone fires the flag when ctx ends (client disconnect, operator
// timeout). Returns a release func for the watcher goroutine.
func (f *AbortFlag) AbortOnDone(ctx context.Context) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			f.Abort()
		case <-f.done:
		case <-stop:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
