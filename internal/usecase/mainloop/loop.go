// Package mainloop is the bridge's main context: a single goroutine that
// runs deferred tasks and recurring timers one at a time. The model store and
// the selection applier are only touched from tasks running on it.
package mainloop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bimbridge/internal/usecase/bridge"
)

// Loop is a cooperative single-goroutine scheduler.
type Loop struct {
	tasks  *bridge.Queue[func()]
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
}

// New creates a loop. Call Run to start executing tasks.
func New(logger *slog.Logger) *Loop {
	return &Loop{
		tasks:  bridge.New[func()](),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post schedules task to run on the loop. It never blocks and may be called
// from any goroutine, including from a task already running on the loop.
func (l *Loop) Post(task func()) {
	l.tasks.Enqueue(task)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Every posts fn every d until the returned stop func is called or the loop
// exits. A tick is skipped while the previous one is still waiting to run.
func (l *Loop) Every(d time.Duration, fn func()) (stop func()) {
	quit := make(chan struct{})
	var once sync.Once
	var pending atomic.Bool

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-l.done:
				return
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				l.Post(func() {
					pending.Store(false)
					select {
					case <-quit:
						return
					default:
					}
					fn()
				})
			}
		}
	}()

	return func() { once.Do(func() { close(quit) }) }
}

// Run executes posted tasks on the calling goroutine until ctx is done.
// Tasks still queued when ctx ends are discarded.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		panic("mainloop: Run called twice")
	}
	defer l.stopOnce.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			for _, task := range l.tasks.DrainAll() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.runTask(task)
			}
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("main loop task panicked", "panic", r)
		}
	}()
	task()
}
