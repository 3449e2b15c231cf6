// Package realtime delivers asynchronous completion signals from the
// verification service to the transaction core.
//
// Three implementations satisfy the same contract: Stream (a persistent
// server-sent-events connection), Poller (an HTTP-polling fallback that
// derives the same events by diffing transaction-state snapshots), and
// Manual (a no-op for callers who re-poll state entirely out of band).
package realtime

import (
	"context"
	"encoding/json"

	"github.com/aussiebroadwan/sentinel/pkg/eventx"
)

// Event names delivered by every Source implementation.
const (
	EventLoginComplete       = "login:complete"
	EventLoginRejected       = "login:rejected"
	EventEnrollmentConfirmed = "enrollment:confirmed"
	EventError               = "error"
)

// Handler receives the JSON payload of one delivered event.
type Handler func(payload json.RawMessage)

// Source is the capability set the transaction core consumes. Connect
// is idempotent: connecting an already-connected source is a no-op and
// onReady still fires. Close tears the connection down and is safe to
// call more than once.
type Source interface {
	Connect(ctx context.Context, token string, onReady func()) error
	On(event string, h Handler) eventx.Handle
	Once(event string, h Handler) eventx.Handle
	Off(event string, handle eventx.Handle) bool
	RemoveAll(event string)
	Close() error
}

// LoginCompletePayload is the wire shape of login:complete.
type LoginCompletePayload struct {
	TxID      string `json:"txId"`
	Signature string `json:"signature"`
}

// LoginRejectedPayload is the wire shape of login:rejected.
type LoginRejectedPayload struct {
	TxID string `json:"txId"`
}

// DeviceAccount is the wire shape of a confirmed device enrollment.
type DeviceAccount struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	PhoneNumber      string   `json:"phoneNumber,omitempty"`
	Methods          []string `json:"methods,omitempty"`
	AvailableMethods []string `json:"availableMethods,omitempty"`
}

// EnrollmentConfirmedPayload is the wire shape of enrollment:confirmed.
type EnrollmentConfirmedPayload struct {
	TxID          string        `json:"txId"`
	Method        string        `json:"method"`
	DeviceAccount DeviceAccount `json:"deviceAccount"`
}

// ErrorPayload is the wire shape of error events.
type ErrorPayload struct {
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// emitterCore gives every Source implementation the same listener
// registry, backed by an eventx.Emitter with handle-based removal.
type emitterCore struct {
	emitter *eventx.Emitter
}

func newEmitterCore() emitterCore {
	return emitterCore{emitter: eventx.NewEmitter(nil)}
}

func (c *emitterCore) On(event string, h Handler) eventx.Handle {
	return c.emitter.On(event, wrapHandler(h))
}

func (c *emitterCore) Once(event string, h Handler) eventx.Handle {
	return c.emitter.Once(event, wrapHandler(h))
}

func (c *emitterCore) Off(event string, handle eventx.Handle) bool {
	return c.emitter.Off(event, handle)
}

func (c *emitterCore) RemoveAll(event string) {
	c.emitter.RemoveAll(event)
}

func (c *emitterCore) emit(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.emitter.Emit(event, json.RawMessage(raw))
}

func (c *emitterCore) emitRaw(event string, payload json.RawMessage) {
	c.emitter.Emit(event, payload)
}

func wrapHandler(h Handler) eventx.Handler {
	return func(payload any) {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			return
		}
		h(raw)
	}
}
