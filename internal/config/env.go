package config

import "os"

// Environment variable names for overrides. FZ_CLIENT_ID/FZ_CLIENT_SECRET
// select machine-to-machine authentication; they have no file equivalent.
const (
	EnvConfig        = "FZ_CONFIG"
	EnvAPIURL        = "FZ_API_URL"
	EnvProjectID     = "FZ_PROJECT_ID"
	EnvOutput        = "FZ_OUTPUT"
	EnvOAuthClientID = "FZ_OAUTH_CLIENT_ID"
	EnvClientID      = "FZ_CLIENT_ID"
	EnvClientSecret  = "FZ_CLIENT_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath    string
	APIURL        string
	ProjectID     string
	Output        string
	OAuthClientID string
	ClientID      string
	ClientSecret  string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		APIURL:        os.Getenv(EnvAPIURL),
		ProjectID:     os.Getenv(EnvProjectID),
		Output:        os.Getenv(EnvOutput),
		OAuthClientID: os.Getenv(EnvOAuthClientID),
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
	}
}
