// Package tokenx decodes transaction tokens on the client side.
//
// The verification service signs its own tokens; this SDK never holds
// the key and never needs to. It only reads the claims it is entitled
// to rely on locally: the transaction id and the expiry, which arms a
// single-shot countdown so callers learn the token died before the
// service tells them with a 401.
package tokenx

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed reports a token string the JWT parser could not decode.
var ErrMalformed = errors.New("tokenx: malformed transaction token")

// Claims are the transaction-token claims this SDK reads.
type Claims struct {
	jwt.RegisteredClaims

	// TxID is the transaction id the service correlates realtime
	// events against.
	TxID string `json:"txid,omitempty"`
}

// Token is a decoded transaction token. The raw string is retained so
// the token can be replayed verbatim in Authorization headers and in
// serialized transaction state.
type Token struct {
	raw       string
	txID      string
	expiresAt time.Time
}

// Parse decodes raw without verifying the signature. Signature
// verification is the service's job; the client only inspects claims.
func Parse(raw string) (*Token, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, ErrMalformed
	}

	t := &Token{raw: raw, txID: claims.TxID}
	if claims.ExpiresAt != nil {
		t.expiresAt = claims.ExpiresAt.Time
	}
	return t, nil
}

// String returns the raw encoded token.
func (t *Token) String() string { return t.raw }

// TxID returns the transaction id claim, or "" when absent.
func (t *Token) TxID() string { return t.txID }

// ExpiresAt returns the expiry instant, zero when the token carries no
// exp claim.
func (t *Token) ExpiresAt() time.Time { return t.expiresAt }

// Expired reports whether the token's expiry has passed. Tokens
// without an exp claim never expire locally.
func (t *Token) Expired() bool {
	return !t.expiresAt.IsZero() && time.Now().After(t.expiresAt)
}

// ExpiryTimer fires a callback exactly once when a token expires.
type ExpiryTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	fired bool
}

// StartExpiryTimer arms a single-shot countdown to the token's expiry.
// onExpire runs once, on its own goroutine, when the deadline passes;
// a token that is already past its expiry fires immediately. Tokens
// without an exp claim return a timer that never fires.
func (t *Token) StartExpiryTimer(onExpire func()) *ExpiryTimer {
	et := &ExpiryTimer{}
	if t.expiresAt.IsZero() {
		return et
	}

	delay := time.Until(t.expiresAt)
	if delay < 0 {
		delay = 0
	}
	et.timer = time.AfterFunc(delay, func() {
		et.mu.Lock()
		if et.fired {
			et.mu.Unlock()
			return
		}
		et.fired = true
		et.mu.Unlock()
		onExpire()
	})
	return et
}

// Stop disarms the timer. Stopping after the callback ran, or stopping
// twice, is a no-op.
func (et *ExpiryTimer) Stop() {
	et.mu.Lock()
	defer et.mu.Unlock()
	et.fired = true
	if et.timer != nil {
		et.timer.Stop()
	}
}
