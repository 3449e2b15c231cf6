package mfa

import (
	"slices"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
	"github.com/aussiebroadwan/sentinel/pkg/realtime"
	"github.com/aussiebroadwan/sentinel/pkg/tokenx"
)

// PendingDeviceAccount describes the provisional device the service
// created for an enrollment that has been started but not confirmed.
type PendingDeviceAccount struct {
	ID           string `json:"id"`
	OTPSecret    string `json:"otpSecret,omitempty"`
	RecoveryCode string `json:"recoveryCode,omitempty"`
}

// StartFlowResponse is the service's answer to starting an MFA flow.
// It seeds a fresh transaction: the token, the confirmed enrollments if
// any, and the provisional device when an enrollment is pending.
type StartFlowResponse struct {
	TransactionToken               string                   `json:"transactionToken"`
	AvailableEnrollmentMethods     []string                 `json:"availableEnrollmentMethods"`
	AvailableAuthenticationMethods []string                 `json:"availableAuthenticationMethods"`
	Enrollments                    []realtime.DeviceAccount `json:"enrollments,omitempty"`
	DeviceAccount                  *PendingDeviceAccount    `json:"deviceAccount,omitempty"`
	EnrollmentTxID                 string                   `json:"enrollmentTxId,omitempty"`
	Issuer                         string                   `json:"issuer,omitempty"`
	AccountLabel                   string                   `json:"accountLabel,omitempty"`

	// LoginRequired reports whether an authentication round must still
	// follow a confirmed enrollment before the session is verified.
	LoginRequired bool `json:"loginRequired,omitempty"`
}

// New builds a transaction from a fresh start-flow response. A nil
// cfg.Client falls back to a client against baseURL; a nil cfg.Source
// falls back to the manual no-op source.
func New(cfg Config, baseURL string, resp StartFlowResponse) (*Transaction, error) {
	token, err := tokenx.Parse(resp.TransactionToken)
	if err != nil {
		return nil, errInvalidToken("start flow response carries an unparseable transaction token")
	}
	if token.Expired() {
		return nil, errCredentialsExpired()
	}
	if cfg.Client == nil {
		cfg.Client = apix.New(baseURL)
	}
	if cfg.Source == nil {
		cfg.Source = realtime.NewManual()
	}

	t := newTransaction(cfg, token)
	t.availableEnrollmentMethods = slices.Clone(resp.AvailableEnrollmentMethods)
	t.availableAuthMethods = slices.Clone(resp.AvailableAuthenticationMethods)
	for _, da := range resp.Enrollments {
		t.enrollments = append(t.enrollments, enrollmentFromDeviceAccount(da))
	}
	if resp.DeviceAccount != nil {
		t.attempt = &EnrollmentAttempt{
			EnrollmentID:   resp.DeviceAccount.ID,
			EnrollmentTxID: resp.EnrollmentTxID,
			OTPSecret:      resp.DeviceAccount.OTPSecret,
			RecoveryCode:   resp.DeviceAccount.RecoveryCode,
			Issuer:         resp.Issuer,
			AccountLabel:   resp.AccountLabel,
			LoginRequired:  resp.LoginRequired,
		}
	}
	return t, nil
}
