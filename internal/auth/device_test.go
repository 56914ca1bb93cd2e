package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidzero/fz-cli/internal/credfile"
)

func TestLogin_DeviceFlow(t *testing.T) {
	var polls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize/device", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_pub", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"device_code": "dev-code-1",
			"user_code": "WXYZ-1234",
			"verification_uri": "https://idp.example.com/activate",
			"verification_uri_complete": "https://idp.example.com/activate?code=WXYZ-1234",
			"expires_in": 300,
			"interval": 1
		}`)
	})
	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:device_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "dev-code-1", r.PostForm.Get("device_code"))

		w.Header().Set("Content-Type", "application/json")

		// First poll: pending. Second: tokens.
		if polls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"authorization_pending"}`)

			return
		}

		fmt.Fprint(w, `{"access_token":"device-access","refresh_token":"device-refresh","expires_in":3600}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	credPath := filepath.Join(t.TempDir(), "credentials.json")

	var displayed DeviceAuth

	rec, err := Login(context.Background(), LoginConfig{
		ClientID:        "client_pub",
		DeviceAuthURL:   srv.URL + "/authorize/device",
		TokenURL:        srv.URL + "/authenticate",
		APIURL:          "https://api.example.com",
		CredentialsPath: credPath,
	}, func(da DeviceAuth) { displayed = da }, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "WXYZ-1234", displayed.UserCode)
	assert.Equal(t, "https://idp.example.com/activate", displayed.VerificationURI)

	assert.Equal(t, "device-access", rec.AccessToken)
	assert.Equal(t, "device-refresh", rec.RefreshToken)
	assert.Equal(t, "https://api.example.com", rec.APIURL)
	assert.Equal(t, "client_pub", rec.ClientID)

	// The record was persisted for subsequent runs.
	saved, err := credfile.Load(credPath)
	require.NoError(t, err)
	assert.Equal(t, rec, saved)

	assert.GreaterOrEqual(t, polls.Load(), int64(2))
}

func TestLogin_MissingClientID(t *testing.T) {
	_, err := Login(context.Background(), LoginConfig{}, func(DeviceAuth) {}, testLogger(t))
	assert.ErrorContains(t, err, "client ID not configured")
}

func TestLogin_AccessDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize/device", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"device_code":"d","user_code":"u","verification_uri":"v","expires_in":300,"interval":1}`)
	})
	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"access_denied"}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Login(context.Background(), LoginConfig{
		ClientID:        "client_pub",
		DeviceAuthURL:   srv.URL + "/authorize/device",
		TokenURL:        srv.URL + "/authenticate",
		APIURL:          "https://api.example.com",
		CredentialsPath: filepath.Join(t.TempDir(), "credentials.json"),
	}, func(DeviceAuth) {}, testLogger(t))
	assert.ErrorContains(t, err, "device authorization failed")
}
