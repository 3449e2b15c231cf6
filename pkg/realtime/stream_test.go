package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// sseServer streams the given frames and then blocks until the client
// disconnects.
func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, eventsPath, r.URL.Path)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()

		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
}

func TestStreamDeliversNamedEvents(t *testing.T) {
	t.Parallel()

	srv := sseServer(t, []string{
		": keep-alive\n\n",
		"event: enrollment:confirmed\ndata: {\"txId\":\"tx1\",\"method\":\"push\",\"deviceAccount\":{\"id\":\"dev1\"}}\n\n",
		"event: login:complete\ndata: {\"txId\":\"tx1\",\"signature\":\"sig\"}\n\n",
	})
	defer srv.Close()

	s := NewStream(srv.URL, &http.Client{}, nil)
	enrolled := collect(s, EventEnrollmentConfirmed)
	complete := collect(s, EventLoginComplete)

	ready := false
	require.NoError(t, s.Connect(context.Background(), "token", func() { ready = true }))
	defer s.Close()
	require.True(t, ready)

	select {
	case raw := <-enrolled:
		var payload EnrollmentConfirmedPayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		require.Equal(t, "dev1", payload.DeviceAccount.ID)
	case <-time.After(time.Second):
		t.Fatal("no enrollment:confirmed event")
	}

	select {
	case raw := <-complete:
		var payload LoginCompletePayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		require.Equal(t, "sig", payload.Signature)
	case <-time.After(time.Second):
		t.Fatal("no login:complete event")
	}
}

func TestStreamConnectIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := sseServer(t, nil)
	defer srv.Close()

	s := NewStream(srv.URL, &http.Client{}, nil)
	defer s.Close()

	require.NoError(t, s.Connect(context.Background(), "token", nil))

	readyAgain := false
	require.NoError(t, s.Connect(context.Background(), "token", func() { readyAgain = true }))
	require.True(t, readyAgain)
}

func TestStreamRejectedSubscription(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewStream(srv.URL, &http.Client{}, nil)
	err := s.Connect(context.Background(), "token", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestManualSourceInjectsEvents(t *testing.T) {
	t.Parallel()

	m := NewManual()
	ready := false
	require.NoError(t, m.Connect(context.Background(), "token", func() { ready = true }))
	require.True(t, ready)

	got := collect(m, EventLoginRejected)
	m.Emit(EventLoginRejected, LoginRejectedPayload{TxID: "tx9"})

	select {
	case raw := <-got:
		var payload LoginRejectedPayload
		require.NoError(t, json.Unmarshal(raw, &payload))
		require.Equal(t, "tx9", payload.TxID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	require.NoError(t, m.Close())
}
