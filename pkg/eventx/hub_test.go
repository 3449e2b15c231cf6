package eventx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubDefaultSuppressedByExplicitListener(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	hub := NewHub(e, "login:complete")

	defaultHits := 0
	onceHits := 0
	hub.Default(func(any) { defaultHits++ })
	hub.ListenOnce(func(any) { onceHits++ })

	// Explicit listener present: only it fires.
	e.Emit("login:complete", nil)
	require.Equal(t, 1, onceHits)
	require.Equal(t, 0, defaultHits)

	// The once-listener auto-deregistered, so the default takes over.
	e.Emit("login:complete", nil)
	require.Equal(t, 1, onceHits)
	require.Equal(t, 1, defaultHits)
}

func TestHubDefaultOnlyFirstCallTakesEffect(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	hub := NewHub(e, "ev")

	var got []string
	hub.Default(func(any) { got = append(got, "first") })
	hub.Default(func(any) { got = append(got, "second") })

	e.Emit("ev", nil)
	require.Equal(t, []string{"first"}, got)
}

func TestHubRemoveAllListenersKeepsDefault(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	hub := NewHub(e, "ev")

	defaultHits := 0
	explicitHits := 0
	hub.Default(func(any) { defaultHits++ })
	hub.Listen(func(any) { explicitHits++ })
	hub.Listen(func(any) { explicitHits++ })

	hub.RemoveAllListeners()
	require.False(t, hub.HasExplicitListeners())

	e.Emit("ev", nil)
	require.Equal(t, 0, explicitHits)
	require.Equal(t, 1, defaultHits)
}

func TestHubRemoveSingleListener(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	hub := NewHub(e, "ev")

	hits := 0
	handle := hub.Listen(func(any) { hits++ })
	require.True(t, hub.Remove(handle))
	require.False(t, hub.Remove(handle))

	e.Emit("ev", nil)
	require.Equal(t, 0, hits)
}

func TestHubForwardsPayload(t *testing.T) {
	t.Parallel()

	e := NewEmitter(nil)
	hub := NewHub(e, "ev")

	var got any
	hub.Listen(func(p any) { got = p })

	e.Emit("ev", "payload")
	require.Equal(t, "payload", got)
}
