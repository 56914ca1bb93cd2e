package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
)

func newWebhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage webhook subscriptions",
	}

	var events []string

	create := &cobra.Command{
		Use:   "create <url>",
		Short: "Subscribe a URL to project events",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			client, _ := newAPIClient(buildLogger())

			hook, err := client.CreateWebhook(cmd.Context(), projectID, args[0], events)
			if err != nil {
				return err
			}

			statusf("Created webhook %s.\n", hook.ID)

			return renderWebhooks([]api.Webhook{*hook})
		},
	}
	create.Flags().StringSliceVar(&events, "events", nil,
		"event types to deliver (e.g. document.ready,run.completed); default all")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List webhooks in the selected project",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			client, _ := newAPIClient(buildLogger())

			hooks, err := client.Webhooks(cmd.Context(), projectID)
			if err != nil {
				return err
			}

			return renderWebhooks(hooks)
		},
	})

	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <webhook-id>",
		Short: "Remove a webhook subscription",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			if err := client.DeleteWebhook(cmd.Context(), args[0]); err != nil {
				return err
			}

			statusf("Deleted webhook %s.\n", args[0])

			return nil
		},
	})

	return cmd
}

func renderWebhooks(hooks []api.Webhook) error {
	rows := make([][]string, 0, len(hooks))
	for _, h := range hooks {
		events := strings.Join(h.Events, ",")
		if events == "" {
			events = "all"
		}

		rows = append(rows, []string{h.ID, h.URL, events, h.CreatedAt})
	}

	return render([]string{"ID", "URL", "EVENTS", "CREATED"}, rows, hooks)
}
