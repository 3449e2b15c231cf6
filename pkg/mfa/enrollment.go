package mfa

import (
	"regexp"
	"slices"

	"github.com/aussiebroadwan/sentinel/pkg/realtime"
)

// Method names understood by the SDK. The service advertises subsets of
// these per transaction.
const (
	MethodOTP      = "otp"
	MethodSMS      = "sms"
	MethodPush     = "push"
	MethodRecovery = "recovery-code"
)

var (
	otpCodeRe      = regexp.MustCompile(`^[0-9]+$`)
	recoveryCodeRe = regexp.MustCompile(`^[0-9A-Za-z]+$`)
)

// ValidateOTPCode reports whether code is a well-formed one-time code:
// exactly 6 digits. Pure and side-effect free; runs before any network
// call.
func ValidateOTPCode(code string) bool {
	return len(code) == 6 && otpCodeRe.MatchString(code)
}

// ValidateRecoveryCode reports whether code is a well-formed recovery
// code: exactly 24 alphanumeric characters.
func ValidateRecoveryCode(code string) bool {
	return len(code) == 24 && recoveryCodeRe.MatchString(code)
}

// Enrollment is one confirmed device/factor binding. It is an immutable
// value once constructed; the transaction only registers it into its
// enrollment set.
type Enrollment struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"` // masked by the service

	// Methods are the methods currently active on the device.
	Methods []string `json:"methods,omitempty"`

	// availableMethods are the methods the device could verify with.
	availableMethods []string
}

// NewEnrollment builds an enrollment record.
func NewEnrollment(id, name, phoneNumber string, methods, availableMethods []string) *Enrollment {
	return &Enrollment{
		ID:               id,
		Name:             name,
		PhoneNumber:      phoneNumber,
		Methods:          slices.Clone(methods),
		availableMethods: slices.Clone(availableMethods),
	}
}

// enrollmentFromDeviceAccount converts the realtime wire shape into a
// confirmed enrollment record.
func enrollmentFromDeviceAccount(da realtime.DeviceAccount) *Enrollment {
	return NewEnrollment(da.ID, da.Name, da.PhoneNumber, da.Methods, da.AvailableMethods)
}

// AvailableMethods returns the methods the enrollment can verify with.
// A push-capable device always implicitly supports the authenticator
// method too: the same app that receives pushes can show codes.
func (e *Enrollment) AvailableMethods() []string {
	out := slices.Clone(e.availableMethods)
	if slices.Contains(out, MethodPush) && !slices.Contains(out, MethodOTP) {
		out = append(out, MethodOTP)
	}
	return out
}

// SupportsMethod reports whether method is available on the enrollment.
func (e *Enrollment) SupportsMethod(method string) bool {
	return slices.Contains(e.AvailableMethods(), method)
}

// DefaultMethod picks the natural verification method for the
// enrollment: SMS when a phone number is on file, push when the device
// supports it, authenticator codes otherwise.
func (e *Enrollment) DefaultMethod() string {
	switch {
	case e.PhoneNumber != "":
		return MethodSMS
	case slices.Contains(e.availableMethods, MethodPush):
		return MethodPush
	default:
		return MethodOTP
	}
}

// EnrollmentAttempt is the transient state of an enrollment in
// progress: created when a start-flow response reports a pending
// device, deactivated once the enrollment confirms or the attempt is
// dismissed.
type EnrollmentAttempt struct {
	EnrollmentID    string `json:"enrollmentId"`
	EnrollmentTxID  string `json:"enrollmentTxId"`
	OTPSecret       string `json:"otpSecret,omitempty"` // base32 seed for authenticator URIs
	RecoveryCode    string `json:"recoveryCode,omitempty"`
	Issuer          string `json:"issuer,omitempty"`
	AccountLabel    string `json:"accountLabel,omitempty"`

	// LoginRequired records whether the flow still needs an explicit
	// authentication after the enrollment confirms.
	LoginRequired bool `json:"loginRequired"`

	// Active distinguishes "being confirmed in this session" from a
	// dormant attempt carried over in serialized state.
	Active bool `json:"active"`
}

// Activate marks the attempt as the one being confirmed right now.
func (a *EnrollmentAttempt) Activate() { a.Active = true }

// Dismiss deactivates the attempt. A dismissed attempt can no longer
// claim completion events.
func (a *EnrollmentAttempt) Dismiss() { a.Active = false }
