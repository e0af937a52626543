package channel

import (
	"context"
	"sync"

	"github.com/codefionn/parambridge/internal/logger"
)

// Loop serializes transport callbacks onto a single goroutine. Every receive
// and monitor callback from every channel bound to the same loop runs here,
// one at a time, so the controller state they touch needs no locking of its
// own.
type Loop struct {
	fns      chan func()
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a dispatch loop
func NewLoop() *Loop {
	return &Loop{
		fns:      make(chan func(), 1024),
		stopChan: make(chan struct{}),
	}
}

// Run processes dispatched functions until ctx is cancelled or Stop is called
func (l *Loop) Run(ctx context.Context) {
	logger.Info("Dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Dispatch loop stopped via context cancellation")
			return
		case <-l.stopChan:
			logger.Info("Dispatch loop stopped")
			return
		case fn := <-l.fns:
			fn()
		}
	}
}

// Dispatch enqueues fn for execution on the loop. Events are dropped with a
// warning if the loop has stopped or its queue is full; a full queue means
// the controller has stalled and there is no backpressure mechanism.
func (l *Loop) Dispatch(fn func()) {
	select {
	case <-l.stopChan:
		logger.Warn("Dispatch after loop stop, event dropped")
		return
	default:
	}

	select {
	case l.fns <- fn:
	default:
		logger.Warn("Dispatch queue full, event dropped")
	}
}

// Stop terminates the loop
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}
