package upload

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

// testLogger returns a logger that writes through t.Log so output is
// attached to the right test.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// staticTokens satisfies api.TokenSource with a fixed bearer token.
type staticTokens struct {
	token string
}

func (s *staticTokens) Token(_ context.Context) (string, error) {
	return s.token, nil
}

func (s *staticTokens) ForceRefresh(_ context.Context) (string, error) {
	return s.token, nil
}
