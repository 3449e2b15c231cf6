package eventx

import (
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Handler receives the payload of an emitted event.
type Handler func(payload any)

// Handle identifies a single listener registration. Removal takes the
// handle, not the original handler value, so callers never need to keep
// a comparable reference to the function they registered.
type Handle string

// Zero is the empty registration handle.
const Zero Handle = ""

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h == Zero }

type registration struct {
	handle Handle
	fn     Handler
	once   bool
}

// Emitter is a small in-process event emitter keyed by event name.
// Handlers run synchronously on the emitting goroutine, in registration
// order. Registration returns an opaque ULID handle used for removal.
//
// An Emitter is safe for concurrent use. Handlers must not assume they
// run on any particular goroutine.
type Emitter struct {
	mu        sync.Mutex
	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
	listeners map[string][]registration

	// Logger receives events that would otherwise vanish: an "error"
	// event emitted with no listener registered is logged here rather
	// than silently dropped.
	Logger *slog.Logger
}

// NewEmitter creates an empty emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		entropy:   ulid.Monotonic(rand.Reader, 0),
		listeners: make(map[string][]registration),
		Logger:    logger,
	}
}

// newHandle mints a monotonic ULID handle. Handles are shared between
// the emitter's own registrations and any Hub layered on top of it, so
// the entropy source has its own lock.
func (e *Emitter) newHandle() Handle {
	e.entropyMu.Lock()
	defer e.entropyMu.Unlock()
	u := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), e.entropy)
	return Handle(u.String())
}

// On registers h for every future occurrence of event.
func (e *Emitter) On(event string, h Handler) Handle {
	return e.register(event, h, false)
}

// Once registers h for exactly one future occurrence of event, after
// which the registration is removed automatically.
func (e *Emitter) Once(event string, h Handler) Handle {
	return e.register(event, h, true)
}

func (e *Emitter) register(event string, h Handler, once bool) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	handle := e.newHandle()
	e.listeners[event] = append(e.listeners[event], registration{
		handle: handle,
		fn:     h,
		once:   once,
	})
	return handle
}

// Off removes the registration identified by handle. It reports whether
// a registration was actually removed; removing twice is a no-op.
func (e *Emitter) Off(event string, handle Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.listeners[event]
	for i, reg := range regs {
		if reg.handle == handle {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll removes every registration for event. It takes effect
// synchronously: a handler removed here will not see any later Emit.
func (e *Emitter) RemoveAll(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, event)
}

// ListenerCount returns the number of live registrations for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit delivers payload to every listener registered for event, in
// registration order. Once-listeners are deregistered before their
// handler runs, so a handler re-emitting the same event cannot fire
// itself twice.
//
// An "error" event with zero listeners is never swallowed: it is logged
// at Error level on the emitter's logger.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	regs := e.listeners[event]
	if len(regs) == 0 {
		e.mu.Unlock()
		if event == "error" {
			e.Logger.Error("unhandled error event", "payload", payload)
		}
		return
	}

	// Snapshot the list and strip once-registrations under the lock so
	// a duplicate emission cannot double-fire them.
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	kept := regs[:0]
	for _, reg := range regs {
		if !reg.once {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, reg := range snapshot {
		reg.fn(payload)
	}
}
