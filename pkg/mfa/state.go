package mfa

import (
	"encoding/json"
	"slices"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
	"github.com/aussiebroadwan/sentinel/pkg/realtime"
	"github.com/aussiebroadwan/sentinel/pkg/tokenx"
)

// State is the serialized form of a transaction: everything needed to
// rebuild it in a new process. Step records carry only the factor name;
// listeners and joins are rebuilt fresh on restore.
type State struct {
	TransactionToken               string             `json:"transactionToken"`
	BaseURL                        string             `json:"baseUrl"`
	AvailableEnrollmentMethods     []string           `json:"availableEnrollmentMethods"`
	AvailableAuthenticationMethods []string           `json:"availableAuthenticationMethods"`
	Enrollments                    []Enrollment       `json:"enrollments"`
	EnrollmentAttempt              *EnrollmentAttempt `json:"enrollmentAttempt,omitempty"`
	AuthVerificationStep           *StepState         `json:"authVerificationStep,omitempty"`
	EnrollmentConfirmationStep     *StepState         `json:"enrollmentConfirmationStep,omitempty"`
}

type enrollmentJSON struct {
	ID               string   `json:"id,omitempty"`
	Name             string   `json:"name,omitempty"`
	PhoneNumber      string   `json:"phoneNumber,omitempty"`
	Methods          []string `json:"methods,omitempty"`
	AvailableMethods []string `json:"availableMethods,omitempty"`
}

// MarshalJSON persists the raw available-methods list, without the
// implicit authenticator method AvailableMethods derives.
func (e Enrollment) MarshalJSON() ([]byte, error) {
	return json.Marshal(enrollmentJSON{
		ID:               e.ID,
		Name:             e.Name,
		PhoneNumber:      e.PhoneNumber,
		Methods:          e.Methods,
		AvailableMethods: e.availableMethods,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Enrollment) UnmarshalJSON(data []byte) error {
	var ej enrollmentJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	*e = Enrollment{
		ID:               ej.ID,
		Name:             ej.Name,
		PhoneNumber:      ej.PhoneNumber,
		Methods:          ej.Methods,
		availableMethods: ej.AvailableMethods,
	}
	return nil
}

// Serialize captures the transaction so Restore can rebuild it after a
// process boundary. Restoring and immediately re-serializing yields an
// identical record.
func (t *Transaction) Serialize() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := State{
		TransactionToken:               t.token.String(),
		BaseURL:                        t.client.BaseURL,
		AvailableEnrollmentMethods:     slices.Clone(t.availableEnrollmentMethods),
		AvailableAuthenticationMethods: slices.Clone(t.availableAuthMethods),
	}
	for _, e := range t.enrollments {
		st.Enrollments = append(st.Enrollments, *e)
	}
	if t.attempt != nil {
		attempt := *t.attempt
		st.EnrollmentAttempt = &attempt
	}
	if t.authStep != nil {
		step := t.authStep.Serialize()
		st.AuthVerificationStep = &step
	}
	if t.enrollStep != nil {
		step := t.enrollStep.Serialize()
		st.EnrollmentConfirmationStep = &step
	}
	return st
}

// Restore rebuilds a transaction from a serialized record. A nil
// cfg.Client falls back to a fresh client against the record's base
// URL; a nil cfg.Source falls back to the manual no-op source. In-flight
// steps are re-armed from their factor name alone; the caller must
// re-issue any confirmation it was waiting on.
func Restore(cfg Config, st State) (*Transaction, error) {
	token, err := tokenx.Parse(st.TransactionToken)
	if err != nil {
		return nil, errInvalidToken("serialized transaction token cannot be parsed")
	}
	if cfg.Client == nil {
		cfg.Client = apix.New(st.BaseURL)
	}
	if cfg.Source == nil {
		cfg.Source = realtime.NewManual()
	}

	t := newTransaction(cfg, token)
	t.availableEnrollmentMethods = slices.Clone(st.AvailableEnrollmentMethods)
	t.availableAuthMethods = slices.Clone(st.AvailableAuthenticationMethods)
	for _, e := range st.Enrollments {
		enrollment := e
		t.enrollments = append(t.enrollments, &enrollment)
	}
	if st.EnrollmentAttempt != nil {
		attempt := *st.EnrollmentAttempt
		t.attempt = &attempt
	}

	if st.EnrollmentConfirmationStep != nil {
		if t.attempt == nil {
			return nil, errInvalidState("serialized confirmation step has no enrollment attempt to bind to")
		}
		strategy, err := t.enrollmentStrategy(st.EnrollmentConfirmationStep.Method)
		if err != nil {
			return nil, err
		}
		t.armEnrollmentStep(strategy)
	}
	if st.AuthVerificationStep != nil {
		var strategy Strategy
		if st.AuthVerificationStep.Method == MethodRecovery {
			strategy = t.recoveryStrategy()
		} else {
			strategy, err = t.authStrategy(st.AuthVerificationStep.Method)
			if err != nil {
				return nil, err
			}
		}
		t.armAuthStep(strategy)
	}
	return t, nil
}
