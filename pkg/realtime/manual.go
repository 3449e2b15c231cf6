package realtime

import "context"

// Manual is the no-op Source for callers who drive completion purely by
// re-polling transaction state out of band. It never delivers events on
// its own; tests and embedding callers may still inject them with Emit.
type Manual struct {
	emitterCore
}

// NewManual creates a manual source.
func NewManual() *Manual {
	return &Manual{emitterCore: newEmitterCore()}
}

// Connect reports readiness immediately; there is nothing to open.
func (m *Manual) Connect(_ context.Context, _ string, onReady func()) error {
	if onReady != nil {
		onReady()
	}
	return nil
}

// Emit injects an event, as if it had arrived from the service.
func (m *Manual) Emit(event string, payload any) {
	m.emit(event, payload)
}

// Close is a no-op.
func (m *Manual) Close() error { return nil }
