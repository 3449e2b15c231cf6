package mfa

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
)

// Service endpoints invoked by strategies. These paths are a contract
// with the backend and must not drift.
const (
	pathVerifyOTP      = "/verify-otp"
	pathSendSMS        = "/send-sms"
	pathSendPush       = "/send-push-notification"
	pathRecoverAccount = "/recover-account"
	pathSMSEnrollFmt   = "/device-accounts/%s/sms-enroll"
)

// Input carries the caller-supplied data for a strategy invocation.
// Strategies read only the fields they need.
type Input struct {
	PhoneNumber  string
	OTPCode      string
	RecoveryCode string
}

// Strategy is the per-factor behavior bound to one transaction's token
// (and, for enrollment, its attempt). Strategies hold no mutable state;
// flows construct them on demand.
type Strategy interface {
	// Method names the factor the strategy drives.
	Method() string

	// Start kicks the factor off: requesting a push, sending the SMS.
	// Factors with nothing to send (authenticator, recovery) resolve
	// immediately.
	Start(ctx context.Context, in Input) error

	// ConfirmOrVerify submits the caller-entered code. Factors whose
	// confirmation arrives only over the async channel (push) treat
	// this as a no-op.
	ConfirmOrVerify(ctx context.Context, in Input) error

	// NeedsManualConfirmation reports whether the step must wait for a
	// ConfirmOrVerify call before its local branch can settle.
	NeedsManualConfirmation() bool

	// URI returns the otpauth:// enrollment URI, or "" for strategies
	// that have none (SMS, and every authentication strategy).
	URI() (string, error)
}

// strategyBase carries what every strategy needs for a service call.
type strategyBase struct {
	client *apix.Client
	token  string
}

func (b strategyBase) post(ctx context.Context, path string, body any) error {
	if err := b.client.Post(ctx, path, b.token, body, nil); err != nil {
		var apiErr *apix.APIError
		if errors.As(err, &apiErr) {
			return errRemote(apiErr, apiErr.StatusCode)
		}
		return errRemote(err, 0)
	}
	return nil
}

// verifyOTP posts a manually-entered code to the shared verification
// endpoint; every OTP-based strategy funnels through here.
func (b strategyBase) verifyOTP(ctx context.Context, in Input) error {
	if in.OTPCode == "" {
		return errFieldRequired("otpCode")
	}
	if !ValidateOTPCode(in.OTPCode) {
		return errInvalidOtpFormat()
	}
	return b.post(ctx, pathVerifyOTP, map[string]string{
		"type": "manual_input",
		"code": in.OTPCode,
	})
}

// enrollmentURI renders the attempt's seed as an otpauth URI. extras,
// when present, are appended as query parameters (the push variant
// embeds callback coordinates for the companion app).
func enrollmentURI(attempt *EnrollmentAttempt, extras url.Values) (string, error) {
	if attempt == nil {
		return "", errInvalidState("no enrollment attempt to build a URI from")
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(attempt.OTPSecret))
	if err != nil {
		return "", errInvalidState("enrollment attempt carries a malformed otp secret")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      attempt.Issuer,
		AccountName: attempt.AccountLabel,
		Secret:      secret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build enrollment uri: %w", err)
	}

	if len(extras) == 0 {
		return key.URL(), nil
	}

	u, err := url.Parse(key.URL())
	if err != nil {
		return "", fmt.Errorf("failed to extend enrollment uri: %w", err)
	}
	q := u.Query()
	for name, values := range extras {
		for _, v := range values {
			q.Set(name, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---------------------------------------------------------------------------
// Enrollment strategies
// ---------------------------------------------------------------------------

// otpEnrollmentStrategy enrolls an authenticator app. There is nothing
// to send: the user scans the QR and either types the first code or the
// companion app confirms over the async channel.
type otpEnrollmentStrategy struct {
	strategyBase
	attempt *EnrollmentAttempt
}

func (s *otpEnrollmentStrategy) Method() string { return MethodOTP }

func (s *otpEnrollmentStrategy) Start(context.Context, Input) error { return nil }

func (s *otpEnrollmentStrategy) ConfirmOrVerify(ctx context.Context, in Input) error {
	return s.verifyOTP(ctx, in)
}

func (s *otpEnrollmentStrategy) NeedsManualConfirmation() bool { return false }

func (s *otpEnrollmentStrategy) URI() (string, error) {
	return enrollmentURI(s.attempt, nil)
}

// pushEnrollmentStrategy enrolls a push-capable app. The QR carries the
// enrollment transaction id and the service base URL so the app can
// call back; the browser only waits.
type pushEnrollmentStrategy struct {
	strategyBase
	attempt *EnrollmentAttempt
}

func (s *pushEnrollmentStrategy) Method() string { return MethodPush }

func (s *pushEnrollmentStrategy) Start(context.Context, Input) error { return nil }

func (s *pushEnrollmentStrategy) ConfirmOrVerify(context.Context, Input) error { return nil }

func (s *pushEnrollmentStrategy) NeedsManualConfirmation() bool { return false }

func (s *pushEnrollmentStrategy) URI() (string, error) {
	extras := url.Values{}
	extras.Set("enrollment_tx_id", s.attempt.EnrollmentTxID)
	extras.Set("base_url", s.client.BaseURL)
	extras.Set("id", s.attempt.EnrollmentID)
	return enrollmentURI(s.attempt, extras)
}

// smsEnrollmentStrategy enrolls a phone number: Start sends the code to
// the number, ConfirmOrVerify checks what the user typed back.
type smsEnrollmentStrategy struct {
	strategyBase
	attempt *EnrollmentAttempt
}

func (s *smsEnrollmentStrategy) Method() string { return MethodSMS }

func (s *smsEnrollmentStrategy) Start(ctx context.Context, in Input) error {
	if in.PhoneNumber == "" {
		return errFieldRequired("phoneNumber")
	}
	path := fmt.Sprintf(pathSMSEnrollFmt, url.PathEscape(s.attempt.EnrollmentID))
	return s.post(ctx, path, map[string]string{"phoneNumber": in.PhoneNumber})
}

func (s *smsEnrollmentStrategy) ConfirmOrVerify(ctx context.Context, in Input) error {
	return s.verifyOTP(ctx, in)
}

func (s *smsEnrollmentStrategy) NeedsManualConfirmation() bool { return true }

func (s *smsEnrollmentStrategy) URI() (string, error) { return "", nil }

// ---------------------------------------------------------------------------
// Authentication strategies
// ---------------------------------------------------------------------------

type otpAuthStrategy struct {
	strategyBase
}

func (s *otpAuthStrategy) Method() string { return MethodOTP }

func (s *otpAuthStrategy) Start(context.Context, Input) error { return nil }

func (s *otpAuthStrategy) ConfirmOrVerify(ctx context.Context, in Input) error {
	return s.verifyOTP(ctx, in)
}

func (s *otpAuthStrategy) NeedsManualConfirmation() bool { return true }

func (s *otpAuthStrategy) URI() (string, error) { return "", nil }

type smsAuthStrategy struct {
	strategyBase
}

func (s *smsAuthStrategy) Method() string { return MethodSMS }

// Start sends the code to the number already on file; no input needed.
func (s *smsAuthStrategy) Start(ctx context.Context, _ Input) error {
	return s.post(ctx, pathSendSMS, map[string]string{})
}

func (s *smsAuthStrategy) ConfirmOrVerify(ctx context.Context, in Input) error {
	return s.verifyOTP(ctx, in)
}

func (s *smsAuthStrategy) NeedsManualConfirmation() bool { return true }

func (s *smsAuthStrategy) URI() (string, error) { return "", nil }

type pushAuthStrategy struct {
	strategyBase
}

func (s *pushAuthStrategy) Method() string { return MethodPush }

func (s *pushAuthStrategy) Start(ctx context.Context, _ Input) error {
	return s.post(ctx, pathSendPush, map[string]string{})
}

// ConfirmOrVerify is a no-op: approval arrives only over the async
// channel.
func (s *pushAuthStrategy) ConfirmOrVerify(context.Context, Input) error { return nil }

func (s *pushAuthStrategy) NeedsManualConfirmation() bool { return false }

func (s *pushAuthStrategy) URI() (string, error) { return "", nil }

type recoveryStrategy struct {
	strategyBase
}

func (s *recoveryStrategy) Method() string { return MethodRecovery }

func (s *recoveryStrategy) Start(context.Context, Input) error { return nil }

func (s *recoveryStrategy) ConfirmOrVerify(ctx context.Context, in Input) error {
	if in.RecoveryCode == "" {
		return errFieldRequired("recoveryCode")
	}
	if !ValidateRecoveryCode(in.RecoveryCode) {
		return errInvalidRecoveryCodeFormat()
	}
	return s.post(ctx, pathRecoverAccount, map[string]string{
		"recoveryCode": in.RecoveryCode,
	})
}

func (s *recoveryStrategy) NeedsManualConfirmation() bool { return true }

func (s *recoveryStrategy) URI() (string, error) { return "", nil }
