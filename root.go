package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
	"github.com/fluidzero/fz-cli/internal/auth"
	"github.com/fluidzero/fz-cli/internal/config"
	"github.com/fluidzero/fz-cli/internal/upload"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIURL     string
	flagProject    string
	flagOutput     string
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// httpClientTimeout bounds control-plane requests. Part transfers to storage
// use per-part deadlines instead; see newStorageClient.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newStorageClient returns the client for presigned part PUTs. No overall
// timeout: a multi-minute part transfer on a slow link is legitimate, and the
// engine enforces size-scaled per-part deadlines.
func newStorageClient() *http.Client {
	return &http.Client{}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fz",
		Short:   "FluidZero document intelligence CLI",
		Long:    "Upload documents, manage projects and schemas, and track extraction runs on FluidZero.",
		Version: version,
		// Silence Cobra's default error/usage printing — main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend API base URL")
	cmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "project ID")
	cmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "output format: table, json, or csv")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Flag parse failures are invocation mistakes, not runtime failures.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newDocumentsCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newSchemasCmd())
	cmd.AddCommand(newWebhooksCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAPIKeysCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		APIURL:     flagAPIURL,
		ProjectID:  flagProject,
		Output:     flagOutput,
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by CLI flags.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newAuthManager builds the token lifecycle manager from the resolved config.
func newAuthManager(logger *slog.Logger) *auth.Manager {
	return auth.NewManager(auth.Options{
		APIURL:          resolvedCfg.APIURL,
		CredentialsPath: resolvedCfg.CredentialsPath,
		M2MClientID:     resolvedCfg.ClientID,
		M2MClientSecret: resolvedCfg.ClientSecret,
		HTTPClient:      defaultHTTPClient(),
		Logger:          logger,
	})
}

// newAPIClient builds the authenticated backend client. The manager's API URL
// wins over the configured one: a saved session is only valid for the backend
// that issued it.
func newAPIClient(logger *slog.Logger) (*api.Client, *auth.Manager) {
	mgr := newAuthManager(logger)

	return api.NewClient(mgr.APIURL(), defaultHTTPClient(), mgr, logger), mgr
}

// newUploadEngine builds the transfer engine and its journal.
func newUploadEngine(logger *slog.Logger) (*upload.Engine, *upload.Journal) {
	client, _ := newAPIClient(logger)
	journal := upload.NewJournal(resolvedCfg.DataDir, logger)

	return upload.NewEngine(client, newStorageClient(), journal, logger), journal
}

// requireProject returns the effective project ID or a usage error naming
// the ways to set one.
func requireProject() (string, error) {
	if resolvedCfg.ProjectID == "" {
		return "", &usageError{err: fmt.Errorf(
			"no project selected: pass --project, set %s, or set project_id in the config file",
			config.EnvProjectID)}
	}

	return resolvedCfg.ProjectID, nil
}

// exactArgs is like cobra.ExactArgs but classifies the failure as a usage
// error so it exits with the usage code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{err: fmt.Errorf("%s requires %d argument(s), got %d",
				cmd.CommandPath(), n, len(args))}
		}

		return nil
	}
}

// noArgs rejects positional arguments with a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &usageError{err: fmt.Errorf("%s takes no arguments", cmd.CommandPath())}
	}

	return nil
}
