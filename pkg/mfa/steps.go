package mfa

import (
	"context"

	"github.com/aussiebroadwan/sentinel/pkg/eventx"
)

// StepState is the serializable remnant of an in-flight step. Only the
// factor name survives a round trip; listeners and joins are rebuilt on
// restore.
type StepState struct {
	Method string `json:"method"`
}

// step races two branches: the caller's local confirmation and the
// service's asynchronous answer. Neither alone completes the step; the
// bound callback runs only once both have arrived. Strategies that need
// no manual confirmation have their local branch settled up front.
type step struct {
	strategy Strategy
	hub      *eventx.Hub
	handle   eventx.Handle
	join     *eventx.Join
}

// armStep subscribes the step to its hub and pre-settles the local
// branch when the factor completes purely over the async channel. Any
// listener left by a previous step on the same hub is cleared first so
// exactly one step races at a time.
func armStep(strategy Strategy, hub *eventx.Hub, onBoth func(remote any)) *step {
	s := &step{
		strategy: strategy,
		hub:      hub,
		join:     eventx.NewJoin(onBoth, nil),
	}
	hub.RemoveAllListeners()
	s.handle = hub.ListenOnce(func(payload any) {
		s.join.ResolveRemote(payload)
	})
	if !strategy.NeedsManualConfirmation() {
		s.join.ResolveLocal()
	}
	return s
}

// confirm runs the strategy's local branch. A synchronous failure is
// returned to the caller and leaves the step armed, so a mistyped code
// can simply be retried.
func (s *step) confirm(ctx context.Context, in Input) error {
	if err := s.strategy.ConfirmOrVerify(ctx, in); err != nil {
		return err
	}
	s.join.ResolveLocal()
	return nil
}

// disarm drops the step's hub subscription. Used when the transaction
// ends before the service answers.
func (s *step) disarm() {
	s.hub.Remove(s.handle)
}

func (s *step) serialize() StepState {
	return StepState{Method: s.strategy.Method()}
}

// EnrollmentConfirmationStep waits for a started enrollment to be
// confirmed, by a typed code, by the companion app, or both.
type EnrollmentConfirmationStep struct {
	inner *step
}

// Method names the factor being enrolled.
func (s *EnrollmentConfirmationStep) Method() string { return s.inner.strategy.Method() }

// Confirm submits the caller-entered code for SMS and authenticator
// enrollments. Push enrollments need no call here.
func (s *EnrollmentConfirmationStep) Confirm(ctx context.Context, in Input) error {
	return s.inner.confirm(ctx, in)
}

// URI returns the otpauth URI to render as a QR code, or "" when the
// factor has none.
func (s *EnrollmentConfirmationStep) URI() (string, error) {
	return s.inner.strategy.URI()
}

// Serialize captures the step for transaction persistence.
func (s *EnrollmentConfirmationStep) Serialize() StepState { return s.inner.serialize() }

// AuthVerificationStep waits for an authentication challenge to be
// answered, by a typed code or by the service's push decision.
type AuthVerificationStep struct {
	inner *step
}

// Method names the factor being verified.
func (s *AuthVerificationStep) Method() string { return s.inner.strategy.Method() }

// Verify submits the caller-entered code or recovery code. Push
// verification needs no call here.
func (s *AuthVerificationStep) Verify(ctx context.Context, in Input) error {
	return s.inner.confirm(ctx, in)
}

// Serialize captures the step for transaction persistence.
func (s *AuthVerificationStep) Serialize() StepState { return s.inner.serialize() }
