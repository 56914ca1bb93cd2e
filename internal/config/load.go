package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values from CLI flags that override everything else.
// Zero values mean "not specified"; no flag needs to distinguish an explicit
// zero from absence.
type CLIOverrides struct {
	ConfigPath  string // --config
	APIURL      string // --api-url
	ProjectID   string // --project
	Output      string // --output
	Concurrency int    // --concurrency
}

// loadFile reads and parses one TOML config file.
func loadFile(path string) (*File, error) {
	var f File

	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return &f, nil
}

// loadFileIfExists reads a TOML config file if present, otherwise returns an
// empty File. Supports the zero-config first-run experience.
func loadFileIfExists(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &File{}, nil
	}

	return loadFile(path)
}

// overlay copies src's set fields over dst. Sections are merged field by
// field: a local file can change just the default project without
// re-stating the API URL.
func overlay(dst, src *File) {
	if src.Defaults.APIURL != "" {
		dst.Defaults.APIURL = src.Defaults.APIURL
	}

	if src.Defaults.ProjectID != "" {
		dst.Defaults.ProjectID = src.Defaults.ProjectID
	}

	if src.Defaults.Output != "" {
		dst.Defaults.Output = src.Defaults.Output
	}

	if src.Defaults.OAuthClientID != "" {
		dst.Defaults.OAuthClientID = src.Defaults.OAuthClientID
	}

	if src.Defaults.DeviceAuthURL != "" {
		dst.Defaults.DeviceAuthURL = src.Defaults.DeviceAuthURL
	}

	if src.Defaults.TokenURL != "" {
		dst.Defaults.TokenURL = src.Defaults.TokenURL
	}

	if src.Upload.Concurrency != 0 {
		dst.Upload.Concurrency = src.Upload.Concurrency
	}

	if src.Upload.RetryAttempts != 0 {
		dst.Upload.RetryAttempts = src.Upload.RetryAttempts
	}

	if src.Runs.PollInterval != "" {
		dst.Runs.PollInterval = src.Runs.PollInterval
	}

	if src.Runs.Timeout != "" {
		dst.Runs.Timeout = src.Runs.Timeout
	}
}

// Resolve applies the full override chain: defaults -> global config file ->
// project-local .fluidzero.toml -> environment -> CLI flags. The precedence
// order ensures CLI flags always win, matching user expectations for one-off
// overrides without editing a file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	merged, err := loadFileIfExists(cfgPath)
	if err != nil {
		return nil, err
	}

	localPath := localConfigPath()

	local, err := loadFileIfExists(localPath)
	if err != nil {
		return nil, err
	}

	overlay(merged, local)

	r := &Resolved{
		APIURL:        DefaultAPIURL,
		Output:        DefaultOutput,
		ProjectID:     merged.Defaults.ProjectID,
		OAuthClientID: merged.Defaults.OAuthClientID,
		DeviceAuthURL: merged.Defaults.DeviceAuthURL,
		TokenURL:      merged.Defaults.TokenURL,
		Upload: UploadConfig{
			Concurrency:   DefaultConcurrency,
			RetryAttempts: DefaultRetryAttempts,
		},
		Runs: RunsConfig{
			PollInterval: DefaultPollInterval,
			Timeout:      DefaultRunTimeout,
		},
		ConfigPath:      cfgPath,
		LocalPath:       localPath,
		CredentialsPath: DefaultCredentialsPath(),
		DataDir:         DefaultDataDir(),
	}

	if merged.Defaults.APIURL != "" {
		r.APIURL = merged.Defaults.APIURL
	}

	if merged.Defaults.Output != "" {
		r.Output = merged.Defaults.Output
	}

	if merged.Upload.Concurrency != 0 {
		r.Upload.Concurrency = merged.Upload.Concurrency
	}

	if merged.Upload.RetryAttempts != 0 {
		r.Upload.RetryAttempts = merged.Upload.RetryAttempts
	}

	if merged.Runs.PollInterval != "" {
		r.Runs.PollInterval = merged.Runs.PollInterval
	}

	if merged.Runs.Timeout != "" {
		r.Runs.Timeout = merged.Runs.Timeout
	}

	// Environment overrides.
	if env.APIURL != "" {
		r.APIURL = env.APIURL
	}

	if env.ProjectID != "" {
		r.ProjectID = env.ProjectID
	}

	if env.Output != "" {
		r.Output = env.Output
	}

	if env.OAuthClientID != "" {
		r.OAuthClientID = env.OAuthClientID
	}

	r.ClientID = env.ClientID
	r.ClientSecret = env.ClientSecret

	// CLI overrides.
	if cli.APIURL != "" {
		r.APIURL = cli.APIURL
	}

	if cli.ProjectID != "" {
		r.ProjectID = cli.ProjectID
	}

	if cli.Output != "" {
		r.Output = cli.Output
	}

	if cli.Concurrency != 0 {
		r.Upload.Concurrency = cli.Concurrency
	}

	// OAuth endpoints default to the API's identity proxy.
	if r.DeviceAuthURL == "" {
		r.DeviceAuthURL = r.APIURL + "/oauth/device"
	}

	if r.TokenURL == "" {
		r.TokenURL = r.APIURL + "/oauth/token"
	}

	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}
