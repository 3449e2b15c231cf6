package statecache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sentinel/pkg/mfa"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleState() mfa.State {
	return mfa.State{
		TransactionToken:               "header.payload.signature",
		BaseURL:                        "https://mfa.example.com",
		AvailableEnrollmentMethods:     []string{"push", "sms"},
		AvailableAuthenticationMethods: []string{"push", "otp"},
		EnrollmentAttempt: &mfa.EnrollmentAttempt{
			EnrollmentID:   "dev_1",
			EnrollmentTxID: "etx_1",
			OTPSecret:      "JBSWY3DPEHPK3PXP",
			RecoveryCode:   "ABCDEF123456abcdef789012",
			Active:         true,
		},
		EnrollmentConfirmationStep: &mfa.StepState{Method: "push"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	want := sampleState()
	require.NoError(t, store.Save(t.Context(), "tx_123", want))

	got, err := store.Load(t.Context(), "tx_123")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveOverwritesExisting(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first := sampleState()
	require.NoError(t, store.Save(t.Context(), "tx_123", first))

	second := first
	second.EnrollmentAttempt = nil
	second.EnrollmentConfirmationStep = nil
	require.NoError(t, store.Save(t.Context(), "tx_123", second))

	got, err := store.Load(t.Context(), "tx_123")
	require.NoError(t, err)
	require.Equal(t, second, got)
	require.Nil(t, got.EnrollmentAttempt)
}

func TestLoadMissingKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Load(t.Context(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Save(t.Context(), "tx_123", sampleState()))
	require.NoError(t, store.Delete(t.Context(), "tx_123"))

	_, err := store.Load(t.Context(), "tx_123")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(t.Context(), "tx_123"))
}

func TestPruneDropsOnlyStaleRows(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Save(t.Context(), "fresh", sampleState()))

	// Backdate one row well past any realistic token lifetime.
	_, err := store.db.ExecContext(t.Context(), `
		INSERT INTO transactions (id, state, updated_at)
		VALUES ('stale', '{}', datetime('now', '-2 days'));
	`)
	require.NoError(t, err)

	dropped, err := store.Prune(t.Context(), 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, dropped)

	_, err = store.Load(t.Context(), "stale")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(t.Context(), "fresh")
	require.NoError(t, err)
}
