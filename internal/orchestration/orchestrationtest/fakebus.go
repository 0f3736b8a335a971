// Package orchestrationtest holds the HTTP-client-style test doubles shared
// by the orchestration packages' _test.go files: a fake event bus, a fake
// transport connection, and fake recognizer/synth pipeline implementations.
package orchestrationtest

import (
	"context"
	"sync"

	"github.com/relaylabs/voxrelay/internal/orchestration/bus"
	"github.com/relaylabs/voxrelay/internal/orchestration/events"
)

// FakeBus is a minimal synchronous bus.Bus double: Subscribe records
// handlers, Publish records the event and invokes every handler registered
// for its subject inline, and Deliver lets a test inject an event straight
// into the subscribed handlers without it showing up in Events.
type FakeBus struct {
	mu       sync.Mutex
	handlers map[events.Subject][]bus.Handler
	Events   []events.Event
}

// NewFakeBus constructs an empty FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{handlers: make(map[events.Subject][]bus.Handler)}
}

func (f *FakeBus) Subscribe(subject events.Subject, handler bus.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subject] = append(f.handlers[subject], handler)
}

func (f *FakeBus) Publish(ctx context.Context, ev events.Event, wait bool) bool {
	f.mu.Lock()
	f.Events = append(f.Events, ev)
	handlers := append([]bus.Handler(nil), f.handlers[ev.Subject()]...)
	f.mu.Unlock()

	for _, h := range handlers {
		_ = h(ctx, ev)
	}
	return true
}

// Deliver invokes subject's subscribed handlers with ev without recording ev
// in Events, for tests driving a manager from a simulated upstream event.
func (f *FakeBus) Deliver(ctx context.Context, subject events.Subject, ev events.Event) {
	f.mu.Lock()
	handlers := append([]bus.Handler(nil), f.handlers[subject]...)
	f.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, ev)
	}
}

// EventsOfSubject returns every recorded event matching subject, in
// publish order.
func (f *FakeBus) EventsOfSubject(subject events.Subject) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, ev := range f.Events {
		if ev.Subject() == subject {
			out = append(out, ev)
		}
	}
	return out
}
