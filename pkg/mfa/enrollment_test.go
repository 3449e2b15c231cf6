package mfa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateOTPCode(t *testing.T) {
	t.Parallel()

	valid := []string{"000000", "123456", "999999"}
	for _, code := range valid {
		require.True(t, ValidateOTPCode(code), "code %q", code)
	}

	invalid := []string{"", "12345", "1234567", "12345a", "abcdef", " 12345", "12 456"}
	for _, code := range invalid {
		require.False(t, ValidateOTPCode(code), "code %q", code)
	}
}

func TestValidateRecoveryCode(t *testing.T) {
	t.Parallel()

	require.True(t, ValidateRecoveryCode("ABCDEF123456abcdef789012"))
	require.True(t, ValidateRecoveryCode("000000000000000000000000"))

	invalid := []string{
		"",
		"ABCDEF123456abcdef78901",    // 23 chars
		"ABCDEF123456abcdef7890123",  // 25 chars
		"ABCDEF123456abcdef78901-",   // non-alphanumeric
		"ABCDEF 23456abcdef789012",   // space
	}
	for _, code := range invalid {
		require.False(t, ValidateRecoveryCode(code), "code %q", code)
	}
}

func TestEnrollmentAvailableMethodsImpliesOTPWithPush(t *testing.T) {
	t.Parallel()

	e := NewEnrollment("dev_1", "", "", []string{MethodPush}, []string{MethodPush})
	require.Equal(t, []string{MethodPush, MethodOTP}, e.AvailableMethods())
	require.True(t, e.SupportsMethod(MethodOTP))

	smsOnly := NewEnrollment("dev_2", "", "+54 34167777", []string{MethodSMS}, []string{MethodSMS})
	require.Equal(t, []string{MethodSMS}, smsOnly.AvailableMethods())
	require.False(t, smsOnly.SupportsMethod(MethodOTP))
}

func TestEnrollmentDefaultMethod(t *testing.T) {
	t.Parallel()

	withPhone := NewEnrollment("dev_1", "", "+54 34167777", nil, []string{MethodPush})
	require.Equal(t, MethodSMS, withPhone.DefaultMethod())

	pushOnly := NewEnrollment("dev_2", "", "", nil, []string{MethodPush})
	require.Equal(t, MethodPush, pushOnly.DefaultMethod())

	bare := NewEnrollment("dev_3", "", "", nil, []string{MethodOTP})
	require.Equal(t, MethodOTP, bare.DefaultMethod())
}

func TestEnrollmentAttemptActivateDismiss(t *testing.T) {
	t.Parallel()

	a := &EnrollmentAttempt{EnrollmentID: "dev_1", EnrollmentTxID: "etx_1"}
	require.False(t, a.Active)
	a.Activate()
	require.True(t, a.Active)
	a.Dismiss()
	require.False(t, a.Active)
}
