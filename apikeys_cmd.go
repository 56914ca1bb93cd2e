package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
	"github.com/fluidzero/fz-cli/internal/config"
)

func newAPIKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api-keys",
		Short: "Manage M2M API keys for CI/CD and service integrations",
	}

	cmd.AddCommand(newAPIKeysCreateCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the organization's API keys",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := newAPIClient(buildLogger())

			keys, err := client.APIKeys(cmd.Context())
			if err != nil {
				return err
			}

			return renderAPIKeys(keys)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key-id>",
		Short: "Show one API key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			key, err := client.APIKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return renderAPIKeys([]api.APIKey{*key})
		},
	})

	cmd.AddCommand(newAPIKeysRevokeCmd())

	return cmd
}

func newAPIKeysCreateCmd() *cobra.Command {
	var (
		flagScopes    []string
		flagExpiresAt string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key",
		Long: `Create an API key. The client secret is shown only once, in this
command's output; save it immediately.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			key, err := client.CreateAPIKey(cmd.Context(), args[0], flagScopes, flagExpiresAt)
			if err != nil {
				return err
			}

			// The secret cannot be retrieved again, so it always reaches
			// stdout regardless of --quiet.
			if resolvedCfg.Output == config.OutputJSON {
				return printJSON(key)
			}

			statusf("API key created: %s\n\n", key.Name)
			fmt.Printf("  Client ID:     %s\n", key.ClientID)
			fmt.Printf("  Client Secret: %s\n", key.ClientSecret)
			statusf("\nSave these credentials now; the secret cannot be retrieved again.\n")

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&flagScopes, "scope", nil, "permission scope (repeatable; default: all standard scopes)")
	cmd.Flags().StringVar(&flagExpiresAt, "expires-at", "", "expiry timestamp (RFC 3339)")

	return cmd
}

func newAPIKeysRevokeCmd() *cobra.Command {
	var flagConfirm bool

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flagConfirm {
				return &usageError{err: fmt.Errorf(
					"revoking key %s cannot be undone; re-run with --confirm", args[0])}
			}

			client, _ := newAPIClient(buildLogger())

			if err := client.RevokeAPIKey(cmd.Context(), args[0]); err != nil {
				return err
			}

			statusf("API key revoked: %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().BoolVar(&flagConfirm, "confirm", false, "confirm the revocation")

	return cmd
}

func renderAPIKeys(keys []api.APIKey) error {
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{
			k.ID, k.Name, k.ClientID, k.KeyPrefix, strings.Join(k.Scopes, ","), k.CreatedAt,
		})
	}

	return render([]string{"ID", "NAME", "CLIENT ID", "PREFIX", "SCOPES", "CREATED"}, rows, keys)
}
