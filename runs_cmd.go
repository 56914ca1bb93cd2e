package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Start and track extraction runs",
	}

	cmd.AddCommand(newRunsCreateCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List runs in the selected project",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			client, _ := newAPIClient(buildLogger())

			runs, err := client.Runs(cmd.Context(), projectID)
			if err != nil {
				return err
			}

			return renderRuns(runs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			run, err := client.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return renderRuns([]api.Run{*run})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "wait <run-id>",
		Short: "Block until a run reaches a terminal state",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			run, err := waitForRun(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			return renderRuns([]api.Run{*run})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Request cancellation of an in-progress run",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newAPIClient(buildLogger())

			if err := client.CancelRun(cmd.Context(), args[0]); err != nil {
				return err
			}

			statusf("Cancellation requested for run %s.\n", args[0])

			return nil
		},
	})

	return cmd
}

func newRunsCreateCmd() *cobra.Command {
	var (
		flagSchema        string
		flagSchemaVersion string
		flagPrompt        string
		flagPromptVersion string
		flagWebhook       string
		flagParams        string
		flagExternalID    string
		flagPipeline      string
		flagWaitRun       bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start an extraction run over the project's documents",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, err := requireProject()
			if err != nil {
				return err
			}

			if flagSchema == "" {
				return &usageError{err: errors.New("runs create requires --schema")}
			}

			spec := api.RunSpec{
				SchemaID:        flagSchema,
				SchemaVersionID: flagSchemaVersion,
				PromptID:        flagPrompt,
				PromptVersionID: flagPromptVersion,
				WebhookID:       flagWebhook,
				ExternalRunID:   flagExternalID,
				Pipeline:        flagPipeline,
			}

			if flagParams != "" {
				if err := json.Unmarshal([]byte(flagParams), &spec.Params); err != nil {
					return &usageError{err: fmt.Errorf("--params is not valid JSON: %w", err)}
				}
			}

			client, _ := newAPIClient(buildLogger())

			run, err := client.CreateRun(cmd.Context(), projectID, spec)
			if err != nil {
				return err
			}

			statusf("Run created: %s\n", run.ID)

			if flagWaitRun {
				if run, err = waitForRun(cmd.Context(), client, run.ID); err != nil {
					return err
				}
			}

			return renderRuns([]api.Run{*run})
		},
	}

	cmd.Flags().StringVar(&flagSchema, "schema", "", "schema definition ID (required)")
	cmd.Flags().StringVar(&flagSchemaVersion, "schema-version", "", "schema version ID (default: latest)")
	cmd.Flags().StringVar(&flagPrompt, "prompt", "", "prompt definition ID")
	cmd.Flags().StringVar(&flagPromptVersion, "prompt-version", "", "prompt version ID")
	cmd.Flags().StringVar(&flagWebhook, "webhook", "", "webhook config ID to notify on completion")
	cmd.Flags().StringVar(&flagParams, "params", "", "input parameters as a JSON object")
	cmd.Flags().StringVar(&flagExternalID, "external-id", "", "external run ID for tracking")
	cmd.Flags().StringVar(&flagPipeline, "pipeline", "", "pipeline identifier")
	cmd.Flags().BoolVar(&flagWaitRun, "wait", false, "block until the run reaches a terminal state")

	return cmd
}

// waitForRun polls until the run reaches a terminal state. Poll interval and
// overall timeout come from the [runs] config section.
func waitForRun(ctx context.Context, client *api.Client, runID string) (*api.Run, error) {
	interval, err := resolvedCfg.PollInterval()
	if err != nil {
		return nil, err
	}

	timeout, err := resolvedCfg.RunTimeout()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusf("Waiting for run %s...\n", runID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := client.Run(ctx, runID)
		if err != nil {
			return nil, err
		}

		switch run.Status {
		case api.RunStatusCompleted, api.RunStatusCancelled:
			return run, nil
		case api.RunStatusFailed:
			return nil, fmt.Errorf("run %s failed: %s", run.ID, run.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("timed out waiting for run %s; check later with 'fz runs get %s'",
					runID, runID)
			}

			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func renderRuns(runs []api.Run) error {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{r.ID, r.SchemaID, r.Status, r.CreatedAt, r.CompletedAt})
	}

	return render([]string{"ID", "SCHEMA", "STATUS", "CREATED", "COMPLETED"}, rows, runs)
}
