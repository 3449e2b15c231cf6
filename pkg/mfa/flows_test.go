package mfa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sentinel/pkg/realtime"
)

func TestEnrollmentFlowAvailableFactorsPushImpliesOTP(t *testing.T) {
	t.Parallel()

	tx, _ := newTestTransaction(t, txOptions{
		enrollMethods: []string{MethodPush},
	})
	require.Equal(t, []string{MethodPush, MethodOTP}, tx.EnrollmentFlow().AvailableFactors())
}

func TestEnrollmentFlowAvailableFactorsPreferenceOrder(t *testing.T) {
	t.Parallel()

	tx, _ := newTestTransaction(t, txOptions{
		enrollMethods: []string{MethodPush, MethodSMS},
	})
	require.Equal(t, []string{MethodSMS, MethodPush, MethodOTP}, tx.EnrollmentFlow().AvailableFactors())
}

func TestEnrollmentFlowCanEnrollWith(t *testing.T) {
	t.Parallel()

	tx, _ := newTestTransaction(t, txOptions{
		enrollMethods: []string{MethodPush},
	})
	flow := tx.EnrollmentFlow()

	for _, method := range []string{MethodPush, MethodOTP} {
		allowed, err := flow.CanEnrollWith(method)
		require.NoError(t, err)
		require.True(t, allowed, "method %q", method)
	}

	allowed, err := flow.CanEnrollWith(MethodSMS)
	require.NoError(t, err)
	require.False(t, allowed)

	_, err = flow.CanEnrollWith("fingerprint")
	require.True(t, IsKind(err, KindFactorNotFound))
}

func TestAuthFlowDefaultFactorPrefersSMSWithPhoneNumber(t *testing.T) {
	t.Parallel()

	tx, _ := newTestTransaction(t, txOptions{
		authMethods: []string{MethodSMS, MethodPush, MethodOTP},
	})
	enrollment := NewEnrollment("dev_1", "", "+54 34167777", nil, []string{MethodSMS, MethodPush})
	require.Equal(t, MethodSMS, tx.AuthFlow(enrollment).DefaultFactor())
}

func TestAuthFlowStartRejectsUnknownFactor(t *testing.T) {
	t.Parallel()

	tx, _ := newTestTransaction(t, txOptions{
		enrollments: []realtime.DeviceAccount{{ID: "dev_1", Methods: []string{MethodPush}, AvailableMethods: []string{MethodPush}}},
		authMethods: []string{MethodPush},
	})
	enrollment := tx.Enrollments()[0]

	_, err := tx.AuthFlow(enrollment).Start(t.Context(), "fingerprint", Input{})
	require.True(t, IsKind(err, KindFactorNotFound))
}

func TestAuthFlowStartRejectsDisabledMethod(t *testing.T) {
	t.Parallel()

	tx, _ := newTestTransaction(t, txOptions{
		enrollments: []realtime.DeviceAccount{{ID: "dev_1", Methods: []string{MethodPush}, AvailableMethods: []string{MethodPush}}},
		authMethods: []string{MethodSMS},
	})
	enrollment := tx.Enrollments()[0]

	_, err := tx.AuthFlow(enrollment).Start(t.Context(), MethodPush, Input{})
	require.True(t, IsKind(err, KindAuthMethodDisabled))
}
