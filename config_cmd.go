package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration after all overrides",
		Args:  noArgs,
		RunE:  runConfigShow,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file locations consulted",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Printf("global: %s\n", resolvedCfg.ConfigPath)

			if resolvedCfg.LocalPath != "" {
				fmt.Printf("local:  %s\n", resolvedCfg.LocalPath)
			}

			return nil
		},
	})

	return cmd
}

// configShowOutput is the JSON schema for `config show --output json`.
// Secrets never appear here; client_secret is reported only as present.
type configShowOutput struct {
	APIURL          string `json:"api_url"`
	ProjectID       string `json:"project_id,omitempty"`
	Output          string `json:"output"`
	OAuthClientID   string `json:"oauth_client_id,omitempty"`
	M2MConfigured   bool   `json:"m2m_configured"`
	Concurrency     int    `json:"upload_concurrency"`
	RetryAttempts   int    `json:"upload_retry_attempts"`
	PollInterval    string `json:"runs_poll_interval"`
	RunTimeout      string `json:"runs_timeout"`
	ConfigPath      string `json:"config_path"`
	LocalPath       string `json:"local_path,omitempty"`
	CredentialsPath string `json:"credentials_path"`
	DataDir         string `json:"data_dir"`
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	out := configShowOutput{
		APIURL:          resolvedCfg.APIURL,
		ProjectID:       resolvedCfg.ProjectID,
		Output:          resolvedCfg.Output,
		OAuthClientID:   resolvedCfg.OAuthClientID,
		M2MConfigured:   resolvedCfg.ClientID != "" && resolvedCfg.ClientSecret != "",
		Concurrency:     resolvedCfg.Upload.Concurrency,
		RetryAttempts:   resolvedCfg.Upload.RetryAttempts,
		PollInterval:    resolvedCfg.Runs.PollInterval,
		RunTimeout:      resolvedCfg.Runs.Timeout,
		ConfigPath:      resolvedCfg.ConfigPath,
		LocalPath:       resolvedCfg.LocalPath,
		CredentialsPath: resolvedCfg.CredentialsPath,
		DataDir:         resolvedCfg.DataDir,
	}

	if resolvedCfg.Output == config.OutputJSON {
		return printJSON(out)
	}

	rows := [][]string{
		{"api_url", out.APIURL},
		{"project_id", out.ProjectID},
		{"output", out.Output},
		{"oauth_client_id", out.OAuthClientID},
		{"m2m_configured", strconv.FormatBool(out.M2MConfigured)},
		{"upload.concurrency", strconv.Itoa(out.Concurrency)},
		{"upload.retry_attempts", strconv.Itoa(out.RetryAttempts)},
		{"runs.poll_interval", out.PollInterval},
		{"runs.timeout", out.RunTimeout},
		{"config_path", out.ConfigPath},
		{"local_path", out.LocalPath},
		{"credentials_path", out.CredentialsPath},
		{"data_dir", out.DataDir},
	}

	printTable(os.Stdout, []string{"KEY", "VALUE"}, rows)

	return nil
}
