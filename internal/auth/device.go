package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/fluidzero/fz-cli/internal/credfile"
)

// tokenResponse is the wire shape of the backend's /oauth/token proxy reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// tokenErrorResponse is the wire shape of a token endpoint failure.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// maxErrorBody bounds how much of an error response body is kept for context.
const maxErrorBody = 512

// deviceStrategy refreshes device-flow sessions through the backend's
// /oauth/token proxy. The source=device hint routes the grant to the identity
// provider's session-token endpoint rather than its authorization-code one.
//
// The provider rotates the refresh token on every use: the old value is
// invalid the moment the exchange succeeds, so the rotated pair is persisted
// before the new access token is handed out. A crash after persist loses
// nothing; a crash before persist loses only the exchange we never used.
type deviceStrategy struct {
	apiURL     string
	credPath   string
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	rec *credfile.Record
}

func (s *deviceStrategy) mode() Mode { return ModeDevice }

func (s *deviceStrategy) exchange(ctx context.Context) (*session, error) {
	s.mu.Lock()
	refreshToken := s.rec.RefreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token in credential record (re-login required)")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"source":        {"device"},
	}

	body, err := postForm(ctx, s.httpClient, s.apiURL+"/oauth/token", form)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	now := time.Now()
	expiry := expiryFrom(now, tr.ExpiresIn, tr.AccessToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		s.rec.RefreshToken = tr.RefreshToken
	}
	s.rec.ExpiresAt = expiry.Unix()

	// Persist the rotated pair before returning the new access token. If the
	// save fails the exchange is treated as failed — handing out a token whose
	// refresh token was never written would strand the session on next run.
	if err := credfile.Save(s.credPath, s.rec); err != nil {
		return nil, fmt.Errorf("persisting rotated credentials: %w", err)
	}

	s.logger.Info("device session refreshed",
		slog.Time("expiry", expiry),
	)

	return &session{value: tr.AccessToken, expiry: expiry, mode: ModeDevice}, nil
}

// postForm sends a form-encoded POST and returns the response body, mapping
// non-2xx statuses to an error that includes the provider's error fields.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, tokenErrorDetail(body))
	}

	return body, nil
}

// tokenErrorDetail extracts a human-readable message from a token endpoint
// error body, falling back to the raw (truncated) body.
func tokenErrorDetail(body []byte) string {
	var te tokenErrorResponse
	if err := json.Unmarshal(body, &te); err == nil {
		if te.ErrorDescription != "" {
			return te.ErrorDescription
		}

		if te.Error != "" {
			return te.Error
		}
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	return string(body)
}

// DeviceAuth holds the device code response fields the CLI shows to the user.
type DeviceAuth struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
}

// LoginConfig configures the interactive device authorization flow.
type LoginConfig struct {
	// ClientID is the public OAuth client identifier (not a secret).
	ClientID string
	// DeviceAuthURL and TokenURL are the identity provider's device
	// authorization and token endpoints (RFC 8628).
	DeviceAuthURL string
	TokenURL      string
	// APIURL and CredentialsPath determine what gets recorded on success.
	APIURL          string
	CredentialsPath string
	// HTTPClient is optional; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Login performs the device authorization flow:
//  1. Requests a device + user code from the identity provider
//  2. Calls display so the CLI can show the code and verification URL
//  3. Polls until the user confirms (blocking, respects ctx cancellation;
//     authorization_pending and slow_down are handled by the oauth2 library)
//  4. Saves the credential record to disk
//
// Returns the saved record so the CLI can print session details.
func Login(
	ctx context.Context,
	cfg LoginConfig,
	display func(DeviceAuth),
	logger *slog.Logger,
) (*credfile.Record, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("auth: OAuth client ID not configured")
	}

	ocfg := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: cfg.DeviceAuthURL,
			TokenURL:      cfg.TokenURL,
		},
	}

	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	logger.Info("starting device authorization flow")

	da, err := ocfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device authorization request failed: %w", err)
	}

	logger.Info("device code received, waiting for user confirmation",
		slog.Time("expiry", da.Expiry),
	)

	display(DeviceAuth{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
	})

	tok, err := ocfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device authorization failed: %w", err)
	}

	rec := &credfile.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Unix(),
		APIURL:       cfg.APIURL,
		ClientID:     cfg.ClientID,
	}

	if tok.Expiry.IsZero() {
		rec.ExpiresAt = expiryFrom(time.Now(), 0, tok.AccessToken).Unix()
	}

	if err := credfile.Save(cfg.CredentialsPath, rec); err != nil {
		return nil, fmt.Errorf("auth: saving credentials: %w", err)
	}

	logger.Info("login successful",
		slog.String("path", cfg.CredentialsPath),
		slog.Time("expiry", time.Unix(rec.ExpiresAt, 0)),
	)

	return rec, nil
}
