package mfa

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
	"github.com/aussiebroadwan/sentinel/pkg/realtime"
	"github.com/aussiebroadwan/sentinel/pkg/slogx"
)

func mintToken(t *testing.T, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"txid": "tx_123",
		"exp":  time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

type txOptions struct {
	baseURL       string
	client        *apix.Client
	enrollments   []realtime.DeviceAccount
	pending       *PendingDeviceAccount
	enrollTxID    string
	loginNeeded   bool
	enrollMethods []string
	authMethods   []string
}

// newTestTransaction builds a connected transaction over a manual
// source so tests can inject wire events directly.
func newTestTransaction(t *testing.T, opts txOptions) (*Transaction, *realtime.Manual) {
	t.Helper()

	source := realtime.NewManual()
	baseURL := opts.baseURL
	if baseURL == "" {
		baseURL = "https://mfa.example.com"
	}
	tx, err := New(Config{
		Client: opts.client,
		Source: source,
		Logger: slogx.Nop(),
	}, baseURL, StartFlowResponse{
		TransactionToken:               mintToken(t, time.Hour),
		AvailableEnrollmentMethods:     opts.enrollMethods,
		AvailableAuthenticationMethods: opts.authMethods,
		Enrollments:                    opts.enrollments,
		DeviceAccount:                  opts.pending,
		EnrollmentTxID:                 opts.enrollTxID,
		Issuer:                         "Example",
		AccountLabel:                   "user@example.com",
		LoginRequired:                  opts.loginNeeded,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Connect(t.Context(), nil))
	t.Cleanup(func() { _ = tx.End() })
	return tx, source
}

// collectEvents records every payload delivered for event.
func collectEvents(tx *Transaction, event string) *[]any {
	var got []any
	tx.On(event, func(payload any) {
		got = append(got, payload)
	})
	return &got
}
