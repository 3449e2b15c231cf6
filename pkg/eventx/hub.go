package eventx

import "sync"

// Hub is the single point of truth for "who is listening to one named
// event" on a shared emitter. It tracks explicitly-registered listeners
// separately from one default (fallback) handler: the default fires only
// for occurrences that arrive while zero explicit listeners are
// registered, so an explicit consumer fully overrides default behavior
// instead of both firing.
//
// The hub subscribes to the emitter exactly once and fans out itself;
// whether an occurrence goes to the explicit set or the default is
// evaluated at delivery time, not registration time.
type Hub struct {
	emitter *Emitter
	event   string

	mu         sync.Mutex
	explicit   []registration
	defaultSet bool
	defaultFn  Handler
	wired      bool
}

// NewHub creates a hub for the given event name on emitter.
func NewHub(emitter *Emitter, event string) *Hub {
	return &Hub{emitter: emitter, event: event}
}

// Event returns the event name the hub is bound to.
func (h *Hub) Event() string { return h.event }

// wire installs the hub's single underlying emitter listener.
// Callers must hold h.mu.
func (h *Hub) wire() {
	if h.wired {
		return
	}
	h.wired = true
	h.emitter.On(h.event, h.dispatch)
}

func (h *Hub) dispatch(payload any) {
	h.mu.Lock()
	if len(h.explicit) == 0 {
		fn := h.defaultFn
		h.mu.Unlock()
		if fn != nil {
			fn(payload)
		}
		return
	}

	snapshot := make([]registration, len(h.explicit))
	copy(snapshot, h.explicit)
	kept := h.explicit[:0]
	for _, reg := range h.explicit {
		if !reg.once {
			kept = append(kept, reg)
		}
	}
	h.explicit = kept
	h.mu.Unlock()

	for _, reg := range snapshot {
		reg.fn(payload)
	}
}

// Listen registers a persistent explicit listener. Every future
// occurrence of the hub's event is forwarded to handler until the
// registration is removed.
func (h *Hub) Listen(handler Handler) Handle {
	return h.add(handler, false)
}

// ListenOnce registers an explicit listener for exactly one future
// occurrence, then deregisters it.
func (h *Hub) ListenOnce(handler Handler) Handle {
	return h.add(handler, true)
}

func (h *Hub) add(handler Handler, once bool) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wire()

	handle := h.emitter.newHandle()
	h.explicit = append(h.explicit, registration{
		handle: handle,
		fn:     handler,
		once:   once,
	})
	return handle
}

// Remove deregisters the explicit listener identified by handle.
// Removing an already-removed handle is a no-op.
func (h *Hub) Remove(handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, reg := range h.explicit {
		if reg.handle == handle {
			h.explicit = append(h.explicit[:i:i], h.explicit[i+1:]...)
			return true
		}
	}
	return false
}

// Default registers the fallback handler. Only the first call takes
// effect; later calls are ignored. The default stays wired to the
// emitter for the hub's whole lifetime and survives RemoveAllListeners.
func (h *Hub) Default(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.defaultSet {
		return
	}
	h.defaultSet = true
	h.defaultFn = handler
	h.wire()
}

// RemoveAllListeners deregisters every explicit listener synchronously.
// The default handler, if any, is untouched and resumes handling from
// the next occurrence onward.
func (h *Hub) RemoveAllListeners() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.explicit = nil
}

// HasExplicitListeners reports whether any explicit listener is
// currently registered.
func (h *Hub) HasExplicitListeners() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.explicit) > 0
}
