package camera

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/tphakala/camcore/internal/logger"
)

// Executor runs functions on a serialized context
type Executor interface {
	// Execute schedules fn and reports whether it was accepted
	Execute(fn func()) bool
}

// MainExecutor runs submitted functions one at a time, in submission order,
// on a single goroutine. Its queue is unbounded so callbacks from device
// goroutines never block on it.
type MainExecutor struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewMainExecutor starts the executor goroutine
func NewMainExecutor() *MainExecutor {
	e := &MainExecutor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

// Execute schedules fn. It returns false once Close has been called.
func (e *MainExecutor) Execute(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	e.signal()
	return true
}

// Call runs fn on the executor and waits for it to finish or for ctx to be
// done. It must not be called from the executor goroutine.
func (e *MainExecutor) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !e.Execute(func() {
		defer close(finished)
		fn()
	}) {
		return ErrExecutorClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs everything already queued, then stops the goroutine. It is
// safe to call more than once.
func (e *MainExecutor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.signal()
	<-e.done
}

func (e *MainExecutor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *MainExecutor) loop() {
	defer close(e.done)

	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			<-e.wake
			continue
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(fn)
	}
}

func (e *MainExecutor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			GetLogger().Error("panic in main executor task",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
