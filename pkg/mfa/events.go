package mfa

// Public events emitted by a Transaction. "enrollment-complete" is
// guaranteed to be delivered before "auth-response" even when the
// service answers in the other order.
const (
	EventEnrollmentComplete = "enrollment-complete"
	EventAuthResponse       = "auth-response"
	EventError              = "error"
	EventTimeout            = "timeout"
)

// EnrollmentCompletePayload announces a confirmed enrollment.
// AuthRequired tells the caller whether an authentication round must
// still follow before the session is fully verified.
type EnrollmentCompletePayload struct {
	Enrollment   Enrollment `json:"enrollment"`
	RecoveryCode string     `json:"recoveryCode,omitempty"`
	AuthRequired bool       `json:"authRequired"`
}

// AuthResponsePayload reports the outcome of an authentication round.
// Signature is only present when Accepted is true.
type AuthResponsePayload struct {
	Accepted  bool   `json:"accepted"`
	Signature string `json:"signature,omitempty"`
}

// loginOutcome is the internal envelope the transaction routes accepted
// and rejected login answers through, so steps race a single event.
type loginOutcome struct {
	Accepted  bool
	TxID      string
	Signature string
}
