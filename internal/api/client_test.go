package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// fakeTokens is a test TokenSource with a swappable token and counters.
type fakeTokens struct {
	token     atomic.Value // string
	refreshes atomic.Int64
	tokenErr  error
	// refreshTo, when non-empty, replaces the token on ForceRefresh.
	refreshTo  string
	refreshErr error
}

func newFakeTokens(initial string) *fakeTokens {
	ft := &fakeTokens{}
	ft.token.Store(initial)

	return ft
}

func (f *fakeTokens) Token(_ context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}

	return f.token.Load().(string), nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context) (string, error) {
	f.refreshes.Add(1)

	if f.refreshErr != nil {
		return "", f.refreshErr
	}

	if f.refreshTo != "" {
		f.token.Store(f.refreshTo)
	}

	return f.token.Load().(string), nil
}

// newTestClient creates a Client pointing at the given URL with instant
// retry sleeps for fast tests.
func newTestClient(t *testing.T, url string, tokens TokenSource) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, tokens, slog.Default())
	c.sleepFunc = noopSleep

	return c
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("test-token"))

	resp, err := client.Do(context.Background(), http.MethodGet, "/api/projects", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"ok"}`, string(body))
}

func TestDo_Unauthorized_SingleRefreshAndRetry(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}))
	defer srv.Close()

	tokens := newFakeTokens("stale-token")
	tokens.refreshTo = "fresh-token"

	client := newTestClient(t, srv.URL, tokens)

	resp, err := client.Do(context.Background(), http.MethodGet, "/api/projects/p1", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int64(1), tokens.refreshes.Load())
	assert.Equal(t, int64(2), requests.Load())
}

func TestDo_Unauthorized_SecondFailureSurfacesAuthError(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := newFakeTokens("revoked-token")

	client := newTestClient(t, srv.URL, tokens)

	_, err := client.Do(context.Background(), http.MethodGet, "/api/projects", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Exactly one forced refresh and one replay — no third attempt.
	assert.Equal(t, int64(1), tokens.refreshes.Load())
	assert.Equal(t, int64(2), requests.Load())
}

func TestDo_Unauthorized_RefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := newFakeTokens("stale-token")
	tokens.refreshErr = errors.New("refresh token revoked")

	client := newTestClient(t, srv.URL, tokens)

	_, err := client.Do(context.Background(), http.MethodGet, "/api/projects", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorContains(t, err, "refresh token revoked")
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"server error", http.StatusInternalServerError, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, newFakeTokens("t"))

			_, err := client.Do(context.Background(), http.MethodGet, "/api/x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *Error

			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Message, "nope")
		})
	}
}

func TestDo_NoRetryOnNonTransient4xx(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	_, err := client.Do(context.Background(), http.MethodGet, "/api/x", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), requests.Load())
}

func TestDo_TransientRetrySucceeds(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	resp, err := client.Do(context.Background(), http.MethodGet, "/api/x", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int64(3), requests.Load())
}

func TestDo_TransientRetriesExhausted(t *testing.T) {
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	_, err := client.Do(context.Background(), http.MethodGet, "/api/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int64(maxTransientRetries+1), requests.Load())
}

func TestDo_NetworkErrorAfterRetries(t *testing.T) {
	// Point at a closed server to force connection errors.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	_, err := client.Do(context.Background(), http.MethodGet, "/api/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestDo_TokenErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	tokens := newFakeTokens("")
	tokens.tokenErr = errors.New("not configured")

	client := newTestClient(t, srv.URL, tokens)
	client.sleepFunc = noopSleep

	_, err := client.Do(context.Background(), http.MethodGet, "/api/x", nil)
	assert.ErrorContains(t, err, "not configured")
}

func TestDo_RequestObserverDoesNotAffectFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	var observedMethod, observedPath string

	client.OnRequest = func(method, path string) {
		observedMethod = method
		observedPath = path
	}

	resp, err := client.Do(context.Background(), http.MethodPost, "/api/projects", []byte(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.MethodPost, observedMethod)
	assert.Equal(t, "/api/projects", observedPath)
}

func TestRetryBackoff_HonorsRetryAfter(t *testing.T) {
	client := newTestClient(t, "http://unused", newFakeTokens("t"))

	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"42"}},
	}

	backoff := client.retryBackoff(resp, 0)
	assert.Equal(t, 42*time.Second, backoff)
}

func TestResources_ProjectsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/projects":
			fmt.Fprint(w, `[{"id":"p1","name":"invoices"},{"id":"p2","name":"contracts"}]`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/projects":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"name":"invoices","description":"Q3"}`, string(body))
			fmt.Fprint(w, `{"id":"p3","name":"invoices","description":"Q3"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/projects/p3":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))
	ctx := context.Background()

	projects, err := client.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "invoices", projects[0].Name)

	created, err := client.CreateProject(ctx, "invoices", "Q3")
	require.NoError(t, err)
	assert.Equal(t, "p3", created.ID)

	require.NoError(t, client.DeleteProject(ctx, "p3"))
}

func TestResources_CreateRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/projects/p1/runs", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{
			"schemaDefinitionId": "sch-1",
			"webhookConfigId": "wh-1",
			"inputParameters": {"locale": "en"}
		}`, string(body))

		fmt.Fprint(w, `{"id":"run-1","schemaId":"sch-1","status":"pending"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	run, err := client.CreateRun(context.Background(), "p1", RunSpec{
		SchemaID:  "sch-1",
		WebhookID: "wh-1",
		Params:    map[string]any{"locale": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, RunStatusPending, run.Status)
}

func TestResources_CreateRunRequiresSchema(t *testing.T) {
	client := newTestClient(t, "http://unused", newFakeTokens("t"))

	_, err := client.CreateRun(context.Background(), "p1", RunSpec{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestResources_APIKeysRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/api-keys":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"name":"ci","scopes":["runs:write"]}`, string(body))
			fmt.Fprint(w, `{"id":"k1","name":"ci","clientId":"cid","clientSecret":"shh"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/api-keys":
			fmt.Fprint(w, `[{"id":"k1","name":"ci","keyPrefix":"fzk_"}]`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/api-keys/k1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))
	ctx := context.Background()

	created, err := client.CreateAPIKey(ctx, "ci", []string{"runs:write"}, "")
	require.NoError(t, err)
	assert.Equal(t, "shh", created.ClientSecret)

	keys, err := client.APIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].ClientSecret)

	require.NoError(t, client.RevokeAPIKey(ctx, "k1"))
}

func TestResources_SearchScoping(t *testing.T) {
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"total due","includeCitations":true}`, string(body))

		fmt.Fprint(w, `{"results":[{"content":"The total due is $42.","citations":[{"doc":"a.pdf","page":2}]}]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))
	ctx := context.Background()

	results, err := client.Search(ctx, "", "total due", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.pdf", results[0].Citations[0].Document)
	assert.Equal(t, 2, results[0].Citations[0].Page)

	_, err = client.Search(ctx, "p1", "total due", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/search", "/api/projects/p1/search"}, paths)
}

func TestResources_DocumentsStatusFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p1/documents", r.URL.Path)
		assert.Equal(t, "ready", r.URL.Query().Get("status"))
		fmt.Fprint(w, `[{"id":"d1","fileName":"a.pdf","status":"ready"}]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, newFakeTokens("t"))

	docs, err := client.Documents(context.Background(), "p1", "ready")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].FileName)
}
