package tokenx

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// mintToken builds an HS256-signed token for tests. The parser never
// verifies signatures, so any key will do.
func mintToken(t *testing.T, txID string, expiresAt time.Time) string {
	t.Helper()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TxID: txID,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestParseReadsTxIDAndExpiry(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	raw := mintToken(t, "tx_123", expiry)

	tok, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "tx_123", tok.TxID())
	require.Equal(t, raw, tok.String())
	require.WithinDuration(t, expiry, tok.ExpiresAt(), time.Second)
	require.False(t, tok.Expired())
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse("not-a-jwt")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestExpiredToken(t *testing.T) {
	t.Parallel()

	tok, err := Parse(mintToken(t, "tx", time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	require.True(t, tok.Expired())
}

func TestExpiryTimerFiresOnce(t *testing.T) {
	t.Parallel()

	tok, err := Parse(mintToken(t, "tx", time.Now().Add(20*time.Millisecond)))
	require.NoError(t, err)

	var fired atomic.Int32
	timer := tok.StartExpiryTimer(func() { fired.Add(1) })
	defer timer.Stop()

	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// Give a duplicate firing a chance to show up; it must not.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestExpiryTimerStopPreventsFiring(t *testing.T) {
	t.Parallel()

	tok, err := Parse(mintToken(t, "tx", time.Now().Add(50*time.Millisecond)))
	require.NoError(t, err)

	var fired atomic.Int32
	timer := tok.StartExpiryTimer(func() { fired.Add(1) })
	timer.Stop()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}
