// Package auth owns the access-token lifecycle for both credential modes:
// interactive device-flow sessions (rotating refresh tokens, persisted via
// credfile) and machine-to-machine sessions (client-credential re-exchange,
// memory only). The Manager is the only component that mutates the current
// token or the on-disk credential record.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fluidzero/fz-cli/internal/credfile"
)

// ErrNotConfigured is returned when neither M2M credentials nor a saved
// device-flow session is available.
var ErrNotConfigured = errors.New("auth: not configured (run `fz auth login` or set FZ_CLIENT_ID/FZ_CLIENT_SECRET)")

// ErrRefreshFailed wraps token refresh / re-exchange failures.
var ErrRefreshFailed = errors.New("auth: token refresh failed")

// expiryMargin is the safety window before the nominal expiry at which a
// token is considered stale. Covers clock skew and in-flight request latency.
const expiryMargin = 60 * time.Second

// fallbackLifetime is assumed when the token endpoint omits expires_in and
// the access token carries no readable exp claim.
const fallbackLifetime = 5 * time.Minute

// Mode identifies which credential lifecycle a session token belongs to.
type Mode string

const (
	// ModeDevice is an interactive session obtained via the device flow.
	ModeDevice Mode = "device"
	// ModeM2M is a machine session obtained via client-credentials exchange.
	ModeM2M Mode = "m2m"
)

// session is the in-memory token. M2M sessions are never written to disk.
type session struct {
	value  string
	expiry time.Time
	mode   Mode
}

// valid reports whether the token can still be used at instant now,
// honoring the safety margin.
func (s *session) valid(now time.Time) bool {
	return s != nil && now.Add(expiryMargin).Before(s.expiry)
}

// strategy obtains a fresh session token. Implementations must be safe for
// concurrent use; the Manager serializes exchanges via singleflight anyway.
type strategy interface {
	mode() Mode
	exchange(ctx context.Context) (*session, error)
}

// Options configures a Manager.
type Options struct {
	// APIURL is the backend base URL. A saved credential record's api_url
	// overrides it — the record is only valid for the backend that issued it.
	APIURL string

	// CredentialsPath is the location of the device-flow credential record.
	CredentialsPath string

	// M2MClientID and M2MClientSecret select the M2M strategy when both are
	// set. They take precedence over a saved device-flow session.
	M2MClientID     string
	M2MClientSecret string

	// HTTPClient is used for token exchanges. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Manager decides when the current token is usable, refreshable, or must be
// exchanged anew, and delegates the actual exchange to the selected strategy.
// Construct one per process invocation and share it between clients.
type Manager struct {
	opts   Options
	logger *slog.Logger

	// sf collapses concurrent refreshes into one exchange. A second
	// concurrent device-flow refresh would use an already-rotated (invalid)
	// refresh token, so exactly one may be in flight at a time.
	sf singleflight.Group

	mu    sync.Mutex
	strat strategy
	tok   *session

	// now is a test hook.
	now func() time.Time
}

// NewManager creates a Manager. Strategy selection is lazy — it happens on
// the first Token or ForceRefresh call.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Token returns a valid bearer token, refreshing or re-exchanging first if
// the cached one expires within the safety margin. Concurrent callers during
// a refresh share its result.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.tok.valid(m.now()) {
		v := m.tok.value
		m.mu.Unlock()

		return v, nil
	}
	m.mu.Unlock()

	return m.refresh(ctx)
}

// ForceRefresh bypasses the expiry check and performs a strategy-appropriate
// refresh. Used by the request executor after an authorization failure. If a
// refresh is already in flight its (fresh) result is shared instead of
// starting a second one.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}

	return m.refresh(ctx)
}

// Mode reports the active credential mode. Empty until the first exchange
// decision has been made.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.strat == nil {
		return ""
	}

	return m.strat.mode()
}

// APIURL returns the effective backend base URL (possibly taken from the
// saved credential record).
func (m *Manager) APIURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.opts.APIURL
}

// init selects the strategy on first use: M2M when client credentials are
// configured, otherwise the saved device-flow session.
func (m *Manager) init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.strat != nil {
		return nil
	}

	if m.opts.M2MClientID != "" && m.opts.M2MClientSecret != "" {
		m.strat = newM2MStrategy(m.opts.APIURL, m.opts.M2MClientID, m.opts.M2MClientSecret, m.opts.HTTPClient)
		m.logger.Debug("auth mode selected", slog.String("mode", string(ModeM2M)))

		return nil
	}

	rec, err := credfile.Load(m.opts.CredentialsPath)
	if err != nil {
		return err
	}

	if rec == nil {
		return ErrNotConfigured
	}

	if rec.APIURL != "" {
		m.opts.APIURL = rec.APIURL
	}

	m.strat = &deviceStrategy{
		apiURL:     m.opts.APIURL,
		credPath:   m.opts.CredentialsPath,
		rec:        rec,
		httpClient: m.opts.HTTPClient,
		logger:     m.logger,
	}

	// Seed the in-memory token from the record so a still-valid stored
	// session needs no network call.
	m.tok = &session{
		value:  rec.AccessToken,
		expiry: time.Unix(rec.ExpiresAt, 0),
		mode:   ModeDevice,
	}

	m.logger.Debug("auth mode selected",
		slog.String("mode", string(ModeDevice)),
		slog.Time("expiry", m.tok.expiry),
	)

	return nil
}

// refresh performs a single-flight exchange and installs the result.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	v, err, shared := m.sf.Do("refresh", func() (any, error) {
		m.mu.Lock()
		strat := m.strat
		m.mu.Unlock()

		tok, err := strat.exchange(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.tok = tok
		m.mu.Unlock()

		m.logger.Debug("token refreshed",
			slog.String("mode", string(tok.mode)),
			slog.Time("expiry", tok.expiry),
		)

		return tok.value, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if shared {
		m.logger.Debug("refresh result shared with concurrent caller")
	}

	tok, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected refresh result type", ErrRefreshFailed)
	}

	return tok, nil
}

// expiryFrom derives an absolute expiry from a token response: prefer
// expires_in, else the JWT exp claim, else a conservative fallback.
func expiryFrom(now time.Time, expiresIn int64, accessToken string) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}

	if exp := claimExpiry(accessToken); !exp.IsZero() {
		return exp
	}

	return now.Add(fallbackLifetime)
}
