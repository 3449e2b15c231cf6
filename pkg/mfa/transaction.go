package mfa

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
	"github.com/aussiebroadwan/sentinel/pkg/eventx"
	"github.com/aussiebroadwan/sentinel/pkg/realtime"
	"github.com/aussiebroadwan/sentinel/pkg/slogx"
	"github.com/aussiebroadwan/sentinel/pkg/tokenx"
)

// TxState is the transaction's position in its lifecycle.
type TxState string

const (
	StateNotEnrolled             TxState = "not_enrolled"
	StateEnrollmentAttemptActive TxState = "enrollment_attempt_active"
	StateEnrolled                TxState = "enrolled"
	StateAuthInProgress          TxState = "auth_in_progress"
)

// Internal routing event: accepted and rejected login answers collapse
// into one envelope so a step races a single event name.
const eventLoginDone = "login:done"

// enrollmentSequence orders enrollment-complete before auth-response
// while a local enrollment is in flight. For push and authenticator
// factors a single wire login represents both a first-time enrollment
// confirmation and an implicit login; the caller must see the
// enrollment first.
const enrollmentSequence = "local-enrollment"

// Config carries the collaborators a transaction needs.
type Config struct {
	Client *apix.Client
	Source realtime.Source
	Logger *slog.Logger
}

// Transaction is the aggregate root for one MFA session. It owns the
// enrollment set, the in-progress attempt, factor availability, and the
// listener hubs, and mediates between flows, strategies, and the
// realtime source. All public events surface through On/Once.
type Transaction struct {
	client *apix.Client
	source realtime.Source
	logger *slog.Logger

	token *tokenx.Token

	// Availability lists are fixed at construction and read without
	// the lock.
	availableEnrollmentMethods []string
	availableAuthMethods       []string

	public    *eventx.Emitter
	internal  *eventx.Emitter
	sequencer *eventx.Sequencer
	loginHub  *eventx.Hub
	enrollHub *eventx.Hub
	expiry    *tokenx.ExpiryTimer

	mu          sync.Mutex
	enrollments []*Enrollment
	attempt     *EnrollmentAttempt
	enrollStep  *EnrollmentConfirmationStep
	authStep    *AuthVerificationStep
	wired       bool
	ended       bool

	// pendingEnd defers teardown when a login completes while the
	// matching enrollment confirmation is still outstanding.
	pendingEnd bool
}

func newTransaction(cfg Config, token *tokenx.Token) *Transaction {
	logger := cfg.Logger
	if logger == nil {
		logger = slogx.Nop()
	}

	t := &Transaction{
		client: cfg.Client,
		source: cfg.Source,
		logger: logger,
		token:  token,
	}
	t.public = eventx.NewEmitter(logger)
	t.internal = eventx.NewEmitter(logger)
	t.sequencer = eventx.NewSequencer(t.public)
	t.loginHub = eventx.NewHub(t.internal, eventLoginDone)
	t.enrollHub = eventx.NewHub(t.internal, realtime.EventEnrollmentConfirmed)

	// Out-of-band completions (a push approved while the caller holds
	// no step) still surface through these defaults. An armed step
	// suppresses them for the events it consumes.
	t.loginHub.Default(func(payload any) {
		out, ok := payload.(loginOutcome)
		if !ok {
			t.emitError(errUnexpectedInput("login answer carried an unexpected payload"))
			return
		}
		t.completeAuth(out)
	})
	t.enrollHub.Default(func(payload any) {
		p, ok := payload.(realtime.EnrollmentConfirmedPayload)
		if !ok {
			t.emitError(errUnexpectedInput("enrollment confirmation carried an unexpected payload"))
			return
		}
		t.completeEnrollment(p)
	})

	t.expiry = token.StartExpiryTimer(func() {
		t.sequencer.Emit(EventTimeout, nil)
	})
	return t
}

// On registers a persistent listener for a public transaction event.
func (t *Transaction) On(event string, h eventx.Handler) eventx.Handle {
	return t.public.On(event, h)
}

// Once registers a listener for exactly one occurrence of event.
func (t *Transaction) Once(event string, h eventx.Handler) eventx.Handle {
	return t.public.Once(event, h)
}

// Off removes a listener previously registered with On or Once.
func (t *Transaction) Off(event string, handle eventx.Handle) bool {
	return t.public.Off(event, handle)
}

// RemoveAllListeners drops every public listener for event.
func (t *Transaction) RemoveAllListeners(event string) {
	t.public.RemoveAll(event)
}

// Connect opens the realtime source and begins routing its events into
// the transaction. Connecting twice is a no-op.
func (t *Transaction) Connect(ctx context.Context, onReady func()) error {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return errInvalidState("transaction has ended")
	}
	if !t.wired {
		t.wireSource()
		t.wired = true
	}
	t.mu.Unlock()
	return t.source.Connect(ctx, t.token.String(), onReady)
}

// wireSource bridges the wire events into the internal emitter, where
// the hubs fan them out. Called once, under the lock.
func (t *Transaction) wireSource() {
	t.source.On(realtime.EventLoginComplete, func(raw json.RawMessage) {
		var p realtime.LoginCompletePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.emitError(errUnexpectedInput("malformed login:complete payload"))
			return
		}
		t.internal.Emit(eventLoginDone, loginOutcome{Accepted: true, TxID: p.TxID, Signature: p.Signature})
	})
	t.source.On(realtime.EventLoginRejected, func(raw json.RawMessage) {
		var p realtime.LoginRejectedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.emitError(errUnexpectedInput("malformed login:rejected payload"))
			return
		}
		t.internal.Emit(eventLoginDone, loginOutcome{Accepted: false, TxID: p.TxID})
	})
	t.source.On(realtime.EventEnrollmentConfirmed, func(raw json.RawMessage) {
		var p realtime.EnrollmentConfirmedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.emitError(errUnexpectedInput("malformed enrollment:confirmed payload"))
			return
		}
		t.internal.Emit(realtime.EventEnrollmentConfirmed, p)
	})
	t.source.On(realtime.EventError, func(raw json.RawMessage) {
		var p realtime.ErrorPayload
		_ = json.Unmarshal(raw, &p)
		t.emitError(&Error{Kind: KindRemote, Message: p.Message})
	})
}

func (t *Transaction) emitError(err error) {
	t.sequencer.Emit(EventError, err)
}

// State reports the transaction's lifecycle position.
func (t *Transaction) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.authStep != nil:
		return StateAuthInProgress
	case len(t.enrollments) > 0:
		return StateEnrolled
	case t.attempt != nil && t.attempt.Active:
		return StateEnrollmentAttemptActive
	default:
		return StateNotEnrolled
	}
}

// IsEnrolled reports whether the transaction has a confirmed
// enrollment.
func (t *Transaction) IsEnrolled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enrollments) > 0
}

// Enrollments returns the confirmed enrollments in registration order.
func (t *Transaction) Enrollments() []*Enrollment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.enrollments)
}

// hasEnrollmentLocked reports whether a device is already registered.
// Callers hold t.mu.
func (t *Transaction) hasEnrollmentLocked(id string) bool {
	return slices.ContainsFunc(t.enrollments, func(e *Enrollment) bool {
		return e.ID == id
	})
}

// Token returns the raw transaction token.
func (t *Transaction) Token() string { return t.token.String() }

// AvailableEnrollmentMethods lists the methods the service allows
// enrolling on this transaction.
func (t *Transaction) AvailableEnrollmentMethods() []string {
	return slices.Clone(t.availableEnrollmentMethods)
}

// AvailableAuthenticationMethods lists the methods the service allows
// verifying with on this transaction.
func (t *Transaction) AvailableAuthenticationMethods() []string {
	return slices.Clone(t.availableAuthMethods)
}

// EnrollmentFlow exposes factor selection for enrollment.
func (t *Transaction) EnrollmentFlow() *EnrollmentFlow {
	return &EnrollmentFlow{tx: t}
}

// AuthFlow exposes factor selection for authenticating against the
// given enrollment.
func (t *Transaction) AuthFlow(enrollment *Enrollment) *AuthFlow {
	return &AuthFlow{tx: t, enrollment: *enrollment}
}

// Enroll starts enrolling the given factor. Only valid before any
// enrollment is confirmed. The returned step completes once the factor
// is confirmed, by a typed code, by the companion app, or both.
func (t *Transaction) Enroll(ctx context.Context, method string, in Input) (*EnrollmentConfirmationStep, error) {
	flow := t.EnrollmentFlow()

	t.mu.Lock()
	switch {
	case t.ended:
		t.mu.Unlock()
		return nil, errInvalidState("transaction has ended")
	case t.token.Expired():
		t.mu.Unlock()
		return nil, errCredentialsExpired()
	case len(t.enrollments) > 0:
		t.mu.Unlock()
		return nil, errAlreadyEnrolled()
	case len(t.availableEnrollmentMethods) == 0:
		t.mu.Unlock()
		return nil, errNoMethodAvailable()
	case t.attempt == nil:
		t.mu.Unlock()
		return nil, errInvalidState("no enrollment attempt on this transaction, restart the flow")
	}

	allowed, err := flow.CanEnrollWith(method)
	switch {
	case IsKind(err, KindFactorNotFound):
		// The flow speaks in factors; here the name means no strategy
		// implements the method.
		t.mu.Unlock()
		return nil, errMethodNotFound(method)
	case err != nil:
		t.mu.Unlock()
		return nil, err
	case !allowed:
		t.mu.Unlock()
		return nil, errEnrollmentMethodDisabled(method)
	}

	t.attempt.Activate()
	t.sequencer.AddSequence(enrollmentSequence, []string{EventEnrollmentComplete, EventAuthResponse})
	t.mu.Unlock()

	step, err := flow.Start(ctx, method, in)
	if err != nil {
		t.mu.Lock()
		t.attempt.Dismiss()
		t.mu.Unlock()
		t.sequencer.RemoveSequence(enrollmentSequence)
		return nil, err
	}
	return step, nil
}

// RequestAuth issues an authentication challenge against a confirmed
// enrollment. An empty method selects the enrollment's default factor.
func (t *Transaction) RequestAuth(ctx context.Context, enrollment *Enrollment, method string, in Input) (*AuthVerificationStep, error) {
	t.mu.Lock()
	switch {
	case t.ended:
		t.mu.Unlock()
		return nil, errInvalidState("transaction has ended")
	case t.token.Expired():
		t.mu.Unlock()
		return nil, errCredentialsExpired()
	case len(t.enrollments) == 0:
		t.mu.Unlock()
		return nil, errNotEnrolled()
	}
	if enrollment == nil || len(enrollment.AvailableMethods()) == 0 {
		t.mu.Unlock()
		return nil, errInvalidEnrollment("enrollment is missing or has no available methods")
	}
	if len(t.availableAuthMethods) == 0 {
		t.mu.Unlock()
		return nil, errNoMethodAvailable()
	}
	flow := &AuthFlow{tx: t, enrollment: *enrollment}
	t.mu.Unlock()

	return flow.Start(ctx, method, in)
}

// Recover verifies with the account's recovery code. It bypasses
// factor availability gating entirely: recovery is always permitted
// while enrolled.
func (t *Transaction) Recover(ctx context.Context, in Input) (*AuthVerificationStep, error) {
	t.mu.Lock()
	switch {
	case t.ended:
		t.mu.Unlock()
		return nil, errInvalidState("transaction has ended")
	case t.token.Expired():
		t.mu.Unlock()
		return nil, errCredentialsExpired()
	case len(t.enrollments) == 0:
		t.mu.Unlock()
		return nil, errNotEnrolled()
	}
	flow := &AuthFlow{tx: t, enrollment: *t.enrollments[0]}
	t.mu.Unlock()

	return flow.Recover(ctx, in)
}

// End detaches every listener, stops the expiry timer and closes the
// realtime source. Idempotent.
func (t *Transaction) End() error {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return nil
	}
	t.ended = true
	t.enrollStep = nil
	t.authStep = nil
	t.mu.Unlock()

	if t.expiry != nil {
		t.expiry.Stop()
	}
	t.loginHub.RemoveAllListeners()
	t.enrollHub.RemoveAllListeners()
	for _, event := range []string{
		realtime.EventLoginComplete,
		realtime.EventLoginRejected,
		realtime.EventEnrollmentConfirmed,
		realtime.EventError,
	} {
		t.source.RemoveAll(event)
	}
	return t.source.Close()
}

// ---------------------------------------------------------------------------
// Step arming and centralized completion
// ---------------------------------------------------------------------------

func (t *Transaction) armEnrollmentStep(strategy Strategy) *EnrollmentConfirmationStep {
	inner := armStep(strategy, t.enrollHub, func(remote any) {
		p, ok := remote.(realtime.EnrollmentConfirmedPayload)
		if !ok {
			t.emitError(errUnexpectedInput("enrollment confirmation carried an unexpected payload"))
			return
		}
		t.completeEnrollment(p)
	})
	step := &EnrollmentConfirmationStep{inner: inner}
	t.mu.Lock()
	t.enrollStep = step
	t.mu.Unlock()
	return step
}

func (t *Transaction) armAuthStep(strategy Strategy) *AuthVerificationStep {
	inner := armStep(strategy, t.loginHub, func(remote any) {
		out, ok := remote.(loginOutcome)
		if !ok {
			t.emitError(errUnexpectedInput("login answer carried an unexpected payload"))
			return
		}
		t.completeAuth(out)
	})
	step := &AuthVerificationStep{inner: inner}
	t.mu.Lock()
	t.authStep = step
	t.mu.Unlock()
	return step
}

func (t *Transaction) clearAuthStep(step *AuthVerificationStep) {
	t.mu.Lock()
	if t.authStep == step {
		t.authStep = nil
	}
	t.mu.Unlock()
}

// completeEnrollment is the single mutation site for a confirmed
// enrollment: it registers the new enrollment, settles the payload the
// caller sees, dismisses the attempt and tears the ordering rule down.
// A confirmation whose transaction id does not match the attempt still
// surfaces, but without the recovery code and with authRequired forced
// on, since it cannot be tied to the local attempt. A confirmation for
// a device already on record, or one that arrives after the attempt
// has been dismissed with nothing new to register, is a stray
// duplicate and is dropped.
func (t *Transaction) completeEnrollment(p realtime.EnrollmentConfirmedPayload) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}

	payload := EnrollmentCompletePayload{AuthRequired: true}
	attempt := t.attempt
	if attempt != nil && attempt.Active && p.TxID == attempt.EnrollmentTxID {
		payload.RecoveryCode = attempt.RecoveryCode
		payload.AuthRequired = attempt.LoginRequired
	}

	var enrolled *Enrollment
	switch {
	case p.DeviceAccount.ID != "":
		if t.hasEnrollmentLocked(p.DeviceAccount.ID) {
			t.mu.Unlock()
			return
		}
		enrolled = enrollmentFromDeviceAccount(p.DeviceAccount)
	case attempt != nil && attempt.Active:
		var methods []string
		if p.Method != "" {
			methods = []string{p.Method}
		}
		enrolled = NewEnrollment(attempt.EnrollmentID, "", "", methods, methods)
	default:
		t.mu.Unlock()
		return
	}
	t.enrollments = append(t.enrollments, enrolled)
	payload.Enrollment = *enrolled

	if attempt != nil {
		attempt.Dismiss()
	}
	t.enrollStep = nil
	finish := t.pendingEnd
	t.pendingEnd = false
	t.mu.Unlock()

	t.sequencer.Emit(EventEnrollmentComplete, payload)
	t.sequencer.RemoveSequence(enrollmentSequence)
	if finish {
		_ = t.End()
	}
}

// completeAuth is the single mutation site for a settled login answer.
// Teardown after an accepted login is deferred while an enrollment
// confirmation is still outstanding, so the source stays open long
// enough to deliver it.
func (t *Transaction) completeAuth(out loginOutcome) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	payload := AuthResponsePayload{Accepted: out.Accepted}
	if out.Accepted {
		payload.Signature = out.Signature
	}
	t.authStep = nil
	enrollmentOutstanding := t.attempt != nil && t.attempt.Active
	if out.Accepted && enrollmentOutstanding {
		t.pendingEnd = true
	}
	t.mu.Unlock()

	t.sequencer.Emit(EventAuthResponse, payload)
	if out.Accepted && !enrollmentOutstanding {
		_ = t.End()
	}
}

// ---------------------------------------------------------------------------
// Strategy construction
// ---------------------------------------------------------------------------

func (t *Transaction) base() strategyBase {
	return strategyBase{client: t.client, token: t.token.String()}
}

func (t *Transaction) enrollmentStrategy(method string) (Strategy, error) {
	t.mu.Lock()
	attempt := t.attempt
	t.mu.Unlock()

	switch method {
	case MethodOTP:
		return &otpEnrollmentStrategy{strategyBase: t.base(), attempt: attempt}, nil
	case MethodPush:
		return &pushEnrollmentStrategy{strategyBase: t.base(), attempt: attempt}, nil
	case MethodSMS:
		return &smsEnrollmentStrategy{strategyBase: t.base(), attempt: attempt}, nil
	default:
		return nil, errMethodNotFound(method)
	}
}

func (t *Transaction) authStrategy(method string) (Strategy, error) {
	switch method {
	case MethodOTP:
		return &otpAuthStrategy{strategyBase: t.base()}, nil
	case MethodSMS:
		return &smsAuthStrategy{strategyBase: t.base()}, nil
	case MethodPush:
		return &pushAuthStrategy{strategyBase: t.base()}, nil
	default:
		return nil, errMethodNotFound(method)
	}
}

func (t *Transaction) recoveryStrategy() Strategy {
	return &recoveryStrategy{strategyBase: t.base()}
}
