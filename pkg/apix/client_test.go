package apix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostSendsBearerTokenAndJSONBody(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Post(context.Background(), "/verify-otp", "1234", map[string]string{
		"type": "manual_input",
		"code": "123456",
	}, &out)

	require.NoError(t, err)
	require.True(t, out.OK)
	require.Equal(t, "Bearer 1234", gotAuth)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, map[string]any{"type": "manual_input", "code": "123456"}, gotBody)
}

func TestNonOKBecomesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired","errorCode":"invalid_token"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Get(context.Background(), "/transaction-state", "token", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "invalid_token", apiErr.ErrorCode)
	require.Equal(t, "token expired", apiErr.Message)
}

func TestLegacyErrorCodesAreRemapped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		legacy string
		want   string
	}{
		{"device_account_conflict", ErrorCodeEnrollmentConflict},
		{"device_account_not_found", ErrorCodeEnrollmentNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.legacy, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"message":"nope","errorCode":"` + tc.legacy + `"}`))
			}))
			defer srv.Close()

			err := New(srv.URL).Post(context.Background(), "/device-accounts/123/sms-enroll", "t", nil, nil)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.want, apiErr.ErrorCode)
		})
	}
}

func TestTransportFailureBecomesAPIError(t *testing.T) {
	t.Parallel()

	// Point at a server that is already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := New(srv.URL).Get(context.Background(), "/transaction-state", "t", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ErrorCodeRequestFailed, apiErr.ErrorCode)
	require.Zero(t, apiErr.StatusCode)
	require.Error(t, apiErr.Unwrap())
}

func TestEmptyErrorBodyFallsBackToStatusText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL).Get(context.Background(), "/transaction-state", "t", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "503")
}
