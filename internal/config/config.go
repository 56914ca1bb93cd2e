// Package config implements TOML configuration loading and platform-specific
// path resolution for fz. Settings resolve through a four-layer override
// chain: defaults -> global config file -> project-local config file ->
// environment -> CLI flags.
package config

import (
	"fmt"
	"time"
)

// File is the top-level structure parsed from a TOML config file. A
// project-local .fluidzero.toml overlays the global file field by field:
// only keys the local file actually sets replace global values.
type File struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Upload   UploadConfig   `toml:"upload"`
	Runs     RunsConfig     `toml:"runs"`
}

// DefaultsConfig holds the settings most commands need.
type DefaultsConfig struct {
	APIURL        string `toml:"api_url"`
	ProjectID     string `toml:"project_id"`
	Output        string `toml:"output"`
	OAuthClientID string `toml:"oauth_client_id"`
	DeviceAuthURL string `toml:"device_auth_url"`
	TokenURL      string `toml:"token_url"`
}

// UploadConfig tunes the transfer engine.
type UploadConfig struct {
	Concurrency   int `toml:"concurrency"`
	RetryAttempts int `toml:"retry_attempts"`
}

// RunsConfig controls `runs wait` polling.
type RunsConfig struct {
	PollInterval string `toml:"poll_interval"`
	Timeout      string `toml:"timeout"`
}

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputCSV   = "csv"
)

// Defaults applied before any file, environment, or flag is consulted.
const (
	DefaultAPIURL        = "https://api.fluidzero.com"
	DefaultOutput        = OutputTable
	DefaultConcurrency   = 4
	DefaultRetryAttempts = 3
	DefaultPollInterval  = "2s"
	DefaultRunTimeout    = "10m"
)

// Resolved is the fully merged configuration a command runs with. OAuth
// endpoint URLs default to paths under the API URL, which fronts the
// identity provider.
type Resolved struct {
	APIURL        string
	ProjectID     string
	Output        string
	OAuthClientID string
	DeviceAuthURL string
	TokenURL      string

	// M2M credentials come from the environment only; they are never read
	// from or written to config files.
	ClientID     string
	ClientSecret string

	Upload UploadConfig
	Runs   RunsConfig

	// ConfigPath is the global config file consulted (it may not exist).
	// LocalPath is the project-local overlay actually loaded, or empty.
	ConfigPath string
	LocalPath  string

	CredentialsPath string
	DataDir         string
}

// PollInterval parses the runs poll interval.
func (r *Resolved) PollInterval() (time.Duration, error) {
	return parseDuration("runs.poll_interval", r.Runs.PollInterval)
}

// RunTimeout parses the runs wait timeout.
func (r *Resolved) RunTimeout() (time.Duration, error) {
	return parseDuration("runs.timeout", r.Runs.Timeout)
}

func parseDuration(key, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, val)
	}

	return d, nil
}

// validate rejects values no command could act on. Called on the final
// resolved configuration so a bad flag fails as loudly as a bad file.
func (r *Resolved) validate() error {
	switch r.Output {
	case OutputTable, OutputJSON, OutputCSV:
	default:
		return fmt.Errorf("invalid output format %q: must be %s, %s, or %s",
			r.Output, OutputTable, OutputJSON, OutputCSV)
	}

	if r.APIURL == "" {
		return fmt.Errorf("api_url must not be empty")
	}

	if r.Upload.Concurrency < 1 || r.Upload.Concurrency > 64 {
		return fmt.Errorf("invalid upload.concurrency %d: must be 1-64", r.Upload.Concurrency)
	}

	if r.Upload.RetryAttempts < 1 || r.Upload.RetryAttempts > 10 {
		return fmt.Errorf("invalid upload.retry_attempts %d: must be 1-10", r.Upload.RetryAttempts)
	}

	if _, err := r.PollInterval(); err != nil {
		return err
	}

	if _, err := r.RunTimeout(); err != nil {
		return err
	}

	return nil
}
