// Package events implements the named-event fan-out used by every layer of
// the client: Engine.IO transports and sessions, the Socket.IO manager, and
// namespace sockets all publish state changes this way instead of through
// inheritance.
package events

import (
	"reflect"
	"sync"
)

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

// Handle is returned from On/Once and is the sole unit of deregistration.
// Remove is idempotent: calling it more than once, or after the listener
// has already fired via Once, is a no-op.
type Handle interface {
	Remove()
}

type registration struct {
	id     uint64
	event  string
	once   bool
	fired  bool
	fn     Listener
}

type handle struct {
	obs *Observable
	reg *registration
}

func (h *handle) Remove() {
	h.obs.removeByID(h.reg.event, h.reg.id)
}

// Observable maps event names to an ordered sequence of listeners.
type Observable struct {
	mu     sync.Mutex
	nextID uint64
	byName map[string][]*registration
}

// NewObservable returns an empty event emitter.
func NewObservable() *Observable {
	return &Observable{byName: make(map[string][]*registration)}
}

// On registers a persistent listener for event and returns a handle that
// removes it.
func (o *Observable) On(event string, fn Listener) Handle {
	return o.register(event, fn, false)
}

// Once registers a listener that deregisters itself before it is invoked,
// so an Emit of the same event from within fn does not re-enter it.
func (o *Observable) Once(event string, fn Listener) Handle {
	return o.register(event, fn, true)
}

func (o *Observable) register(event string, fn Listener, once bool) Handle {
	o.mu.Lock()
	o.nextID++
	reg := &registration{id: o.nextID, event: event, once: once, fn: fn}
	o.byName[event] = append(o.byName[event], reg)
	o.mu.Unlock()
	return &handle{obs: o, reg: reg}
}

func (o *Observable) removeByID(event string, id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	regs := o.byName[event]
	for i, r := range regs {
		if r.id == id {
			o.byName[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// RemoveListener removes the first registration of fn for event, comparing
// by the underlying function pointer (funcs are otherwise incomparable in
// Go). Prefer the Handle returned by On/Once when one is available.
func (o *Observable) RemoveListener(event string, fn Listener) bool {
	target := reflect.ValueOf(fn).Pointer()

	o.mu.Lock()
	defer o.mu.Unlock()
	regs := o.byName[event]
	for i, r := range regs {
		if reflect.ValueOf(r.fn).Pointer() == target {
			o.byName[event] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllForEvent removes every listener registered for event.
func (o *Observable) RemoveAllForEvent(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.byName, event)
}

// RemoveAll clears every registration for every event.
func (o *Observable) RemoveAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byName = make(map[string][]*registration)
}

// Emit fires event synchronously against a snapshot of the currently
// registered listeners, so a listener that mutates the registration list
// (e.g. by calling Remove, or by registering a new listener) during the
// call is safe.
func (o *Observable) Emit(event string, args ...any) {
	o.mu.Lock()
	regs := o.byName[event]
	snapshot := make([]*registration, len(regs))
	copy(snapshot, regs)
	o.mu.Unlock()

	for _, r := range snapshot {
		if r.once {
			o.mu.Lock()
			if r.fired {
				o.mu.Unlock()
				continue
			}
			r.fired = true
			o.mu.Unlock()
			o.removeByID(r.event, r.id)
		}
		r.fn(args...)
	}
}

// ListenerCount reports the number of listeners currently registered for event.
func (o *Observable) ListenerCount(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byName[event])
}
