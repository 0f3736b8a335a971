// Package bus implements the per-connection publish/subscribe event bus
// described by the orchestration core: synchronous dispatch initiation,
// asynchronous handler execution, isolated handler failures, and a bounded
// shutdown grace period.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relaylabs/voxrelay/internal/metrics"
	"github.com/relaylabs/voxrelay/internal/orchestration/events"
)

// DefaultShutdownGrace bounds how long Shutdown waits for in-flight
// handlers to drain before giving up.
const DefaultShutdownGrace = 3 * time.Second

// Handler processes one event. Handlers run on their own goroutine; a
// handler that itself publishes must go through Bus.Publish, which never
// recurses synchronously.
type Handler func(ctx context.Context, ev events.Event) error

// Bus is a typed, subject-keyed publish/subscribe dispatcher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[events.Subject][]Handler
	closed   bool

	tasksMu    sync.Mutex
	wg         sync.WaitGroup
	active     int
	nextTaskID int64
	cancelFns  map[int64]context.CancelFunc

	logger *slog.Logger
}

// New constructs a Bus. logger may be nil, in which case slog.Default() is used.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers:  make(map[events.Subject][]Handler),
		cancelFns: make(map[int64]context.CancelFunc),
		logger:    logger,
	}
}

// Subscribe appends handler to subject's ordered list. Delivery order per
// subject equals subscription order.
func (b *Bus) Subscribe(subject events.Subject, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
}

// Publish schedules one goroutine per subscribed handler for ev's subject
// and returns immediately unless wait is true, in which case it joins all
// spawned handlers first. Returns false only if the bus has been shut down.
func (b *Bus) Publish(ctx context.Context, ev events.Event, wait bool) bool {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return false
	}
	handlers := append([]Handler(nil), b.handlers[ev.Subject()]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers for subject", "subject", string(ev.Subject()))
		return true
	}

	var local sync.WaitGroup
	for _, h := range handlers {
		h := h
		hctx, cancel := context.WithCancel(ctx)
		taskID := b.trackTask(cancel)
		local.Add(1)
		go func() {
			defer local.Done()
			defer cancel()
			defer b.untrackTask(taskID)
			b.dispatchSafe(hctx, h, ev)
		}()
	}

	if wait {
		local.Wait()
	}
	return true
}

func (b *Bus) trackTask(cancel context.CancelFunc) int64 {
	b.tasksMu.Lock()
	defer b.tasksMu.Unlock()
	b.active++
	b.nextTaskID++
	id := b.nextTaskID
	b.cancelFns[id] = cancel
	b.wg.Add(1)
	return id
}

func (b *Bus) untrackTask(id int64) {
	b.tasksMu.Lock()
	b.active--
	delete(b.cancelFns, id)
	b.tasksMu.Unlock()
	b.wg.Done()
}

// dispatchSafe invokes handler, recovering panics and converting both
// panics and returned errors into a derived error.occurred event — except
// when the failing handler was itself handling error.occurred, which is
// logged only to prevent an error storm.
func (b *Bus) dispatchSafe(ctx context.Context, h Handler, ev events.Event) {
	start := time.Now()
	defer func() {
		metrics.HandlerDuration.WithLabelValues(string(ev.Subject())).Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			b.reportHandlerFailure(ctx, ev, "panic in event handler")
		}
	}()

	if err := h(ctx, ev); err != nil {
		b.logger.Error("event handler error", "subject", string(ev.Subject()), "error", err)
		b.reportHandlerFailure(ctx, ev, err.Error())
	}
}

func (b *Bus) reportHandlerFailure(ctx context.Context, ev events.Event, message string) {
	if ev.Subject() == events.SubjectErrorOccurred {
		b.logger.Error("error while handling error.occurred, not re-derived", "message", message)
		metrics.EventHandlerErrors.WithLabelValues("error_handling_error").Inc()
		return
	}
	metrics.EventHandlerErrors.WithLabelValues("event_handler_error").Inc()
	errEv := events.NewErrorOccurred("event_handler_error", message, "EventBus", map[string]any{
		"subject": string(ev.Subject()),
	})
	// Scheduled asynchronously so this never recurses synchronously into
	// the handler that just failed.
	go b.Publish(ctx, errEv, false)
}

// PublishFailed reports a publish-time failure (e.g. a caller failed to
// construct an event) as error.occurred. It is exposed so callers that
// build events outside Publish's own error path can still surface
// failures uniformly.
func (b *Bus) PublishFailed(ctx context.Context, message string) {
	errEv := events.NewErrorOccurred("event_bus_publish_error", message, "EventBus", nil)
	go b.Publish(ctx, errEv, false)
}

// Shutdown marks the bus closed so no further events are dispatched, then
// waits up to grace for in-flight handlers to finish. Every handler receives
// a context derived from the one passed to Publish; if grace elapses with
// handlers still running, Shutdown cancels each of their contexts so
// cooperating handlers can unwind instead of leaking past the deadline.
func (b *Bus) Shutdown(ctx context.Context, grace time.Duration) {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus shut down cleanly")
	case <-time.After(grace):
		b.tasksMu.Lock()
		remaining := b.active
		for _, cancel := range b.cancelFns {
			cancel()
		}
		b.tasksMu.Unlock()
		b.logger.Warn("event bus shutdown grace elapsed, force-cancelling stragglers", "remaining", remaining)
	}

	b.mu.Lock()
	b.handlers = make(map[events.Subject][]Handler)
	b.mu.Unlock()
}
