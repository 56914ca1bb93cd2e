package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// m2mStrategy obtains tokens via a full client-credentials exchange. There is
// no refresh token in this mode; every refresh is a re-exchange. Tokens stay
// in memory only — nothing is ever written to the credential store.
type m2mStrategy struct {
	cfg        *clientcredentials.Config
	httpClient *http.Client
}

func newM2MStrategy(apiURL, clientID, clientSecret string, httpClient *http.Client) *m2mStrategy {
	return &m2mStrategy{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     apiURL + "/oauth/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

func (s *m2mStrategy) mode() Mode { return ModeM2M }

func (s *m2mStrategy) exchange(ctx context.Context) (*session, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client credentials exchange: %w", err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = expiryFrom(time.Now(), 0, tok.AccessToken)
	}

	return &session{value: tok.AccessToken, expiry: expiry, mode: ModeM2M}, nil
}
