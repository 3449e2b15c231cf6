package mfa

import (
	"context"
	"slices"
)

// EnrollmentFlow drives adding a new factor to an account. It is only
// valid while the transaction has no confirmed enrollment.
type EnrollmentFlow struct {
	tx *Transaction
}

// AvailableFactors lists the factors the user may enroll, in preference
// order. The authenticator code rides along whenever push is enabled:
// scanning the QR enrolls either an authenticator app or a push-capable
// one, the user cannot tell them apart up front.
func (f *EnrollmentFlow) AvailableFactors() []string {
	var factors []string
	for _, m := range []string{MethodSMS, MethodPush} {
		if slices.Contains(f.tx.availableEnrollmentMethods, m) {
			factors = append(factors, m)
		}
	}
	if slices.Contains(factors, MethodPush) {
		factors = append(factors, MethodOTP)
	}
	return factors
}

// CanEnrollWith reports whether the service currently allows enrolling
// the factor. Push and the authenticator code share one gate since they
// enroll through the same QR scan; SMS has its own.
func (f *EnrollmentFlow) CanEnrollWith(method string) (bool, error) {
	switch method {
	case MethodPush, MethodOTP:
		return slices.Contains(f.tx.availableEnrollmentMethods, MethodPush), nil
	case MethodSMS:
		return slices.Contains(f.tx.availableEnrollmentMethods, MethodSMS), nil
	default:
		return false, errFactorNotFound(method)
	}
}

// Start begins enrolling the factor: it performs the factor's initial
// send (the SMS code, for example) and returns the confirmation step to
// wait on.
func (f *EnrollmentFlow) Start(ctx context.Context, method string, in Input) (*EnrollmentConfirmationStep, error) {
	allowed, err := f.CanEnrollWith(method)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errEnrollmentNotAllowed(method)
	}

	strategy, err := f.tx.enrollmentStrategy(method)
	if err != nil {
		return nil, err
	}
	if err := strategy.Start(ctx, in); err != nil {
		return nil, err
	}
	return f.tx.armEnrollmentStep(strategy), nil
}

// AuthFlow drives verifying an existing enrollment.
type AuthFlow struct {
	tx         *Transaction
	enrollment Enrollment
}

// Enrollment returns the enrollment this flow authenticates against.
func (f *AuthFlow) Enrollment() Enrollment { return f.enrollment }

// DefaultFactor picks the factor to offer first: SMS when the
// enrollment has a phone number, otherwise push when available,
// otherwise the authenticator code.
func (f *AuthFlow) DefaultFactor() string {
	return f.enrollment.DefaultMethod()
}

// Start issues the challenge for the chosen factor and returns the
// verification step to wait on. An empty method selects DefaultFactor.
func (f *AuthFlow) Start(ctx context.Context, method string, in Input) (*AuthVerificationStep, error) {
	if method == "" {
		method = f.DefaultFactor()
	}
	switch method {
	case MethodOTP, MethodSMS, MethodPush:
	default:
		return nil, errFactorNotFound(method)
	}
	if !slices.Contains(f.tx.availableAuthMethods, method) {
		return nil, errAuthMethodDisabled(method)
	}

	strategy, err := f.tx.authStrategy(method)
	if err != nil {
		return nil, err
	}
	if err := strategy.Start(ctx, in); err != nil {
		return nil, err
	}
	return f.tx.armAuthStep(strategy), nil
}

// Recover bypasses factor selection entirely and verifies with the
// account's recovery code. It is always permitted while enrolled, even
// when every other authentication method is disabled.
func (f *AuthFlow) Recover(ctx context.Context, in Input) (*AuthVerificationStep, error) {
	strategy := f.tx.recoveryStrategy()
	step := f.tx.armAuthStep(strategy)
	if err := step.Verify(ctx, in); err != nil {
		step.inner.disarm()
		f.tx.clearAuthStep(step)
		return nil, err
	}
	return step, nil
}
