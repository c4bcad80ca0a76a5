package destination

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// FailureSignal records the first fatal error of a sync. Later errors are
// logged and dropped. Done is closed when the first error is recorded so
// blocked enqueuers and the scheduler can stop.
type FailureSignal struct {
	err  atomic.Pointer[error]
	done chan struct{}
	log  *zap.Logger
}

// NewFailureSignal returns an unset signal. log may be nil.
func NewFailureSignal(log *zap.Logger) *FailureSignal {
	if log == nil {
		log = zap.NewNop()
	}
	return &FailureSignal{done: make(chan struct{}), log: log}
}

// Set records err if no error was recorded yet and reports whether it won.
func (f *FailureSignal) Set(err error) bool {
	if err == nil {
		return false
	}
	if f.err.CompareAndSwap(nil, &err) {
		close(f.done)
		f.log.Error("sync failed", zap.Error(err))
		return true
	}
	f.log.Warn("additional failure after sync already failed", zap.Error(err))
	return false
}

// Check returns the recorded error, or nil.
func (f *FailureSignal) Check() error {
	if p := f.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Done is closed once an error has been recorded.
func (f *FailureSignal) Done() <-chan struct{} { return f.done }
