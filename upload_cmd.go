package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fluidzero/fz-cli/internal/api"
	"github.com/fluidzero/fz-cli/internal/upload"
)

// waitPollInterval is how often --wait polls the document status.
const waitPollInterval = 2 * time.Second

func newUploadCmd() *cobra.Command {
	var (
		flagConcurrency int
		flagResume      bool
		flagUploadID    string
		flagWait        bool
		flagWaitTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents to the selected project",
		Long: `Upload documents through the chunked transfer protocol. Interrupted
uploads can be picked up with --resume: parts the server already holds are
not re-transferred. --resume takes one file (or none with --upload-id, in
which case the journaled path is used).`,
		Args: func(cmd *cobra.Command, args []string) error {
			// --resume --upload-id can recover the file path from the journal.
			if len(args) == 0 && flagResume && flagUploadID != "" {
				return nil
			}

			if flagResume {
				return exactArgs(1)(cmd, args)
			}

			if len(args) < 1 {
				return &usageError{err: fmt.Errorf("%s requires at least one file", cmd.CommandPath())}
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()
			engine, journal := newUploadEngine(logger)

			opts := upload.Options{
				Concurrency:   resolvedCfg.Upload.Concurrency,
				RetryAttempts: resolvedCfg.Upload.RetryAttempts,
				Progress:      progressPrinter(),
			}
			if flagConcurrency > 0 {
				opts.Concurrency = flagConcurrency
			}

			if flagResume {
				filePath := ""
				if len(args) > 0 {
					filePath = args[0]
				}

				doc, err := resumeUpload(cmd.Context(), engine, journal, flagUploadID, filePath, opts)
				if err != nil {
					return err
				}

				return finishUpload(cmd.Context(), logger, []api.Document{*doc}, flagWait, flagWaitTimeout)
			}

			projectID, err := requireProject()
			if err != nil {
				return err
			}

			// Files transfer one at a time; parallelism lives inside each
			// upload's part workers.
			docs := make([]api.Document, 0, len(args))

			for _, filePath := range args {
				doc, err := engine.Upload(cmd.Context(), projectID, filePath, opts)
				if err != nil {
					return err
				}

				statusf("Uploaded %s as document %s (status: %s).\n", doc.FileName, doc.ID, doc.Status)
				docs = append(docs, *doc)
			}

			return finishUpload(cmd.Context(), logger, docs, flagWait, flagWaitTimeout)
		},
	}

	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "parts in flight (default from config)")
	cmd.Flags().BoolVar(&flagResume, "resume", false, "resume an interrupted upload")
	cmd.Flags().StringVar(&flagUploadID, "upload-id", "", "upload session to resume (default: look up by file path)")
	cmd.Flags().BoolVar(&flagWait, "wait", false, "block until the document finishes processing")
	cmd.Flags().DurationVar(&flagWaitTimeout, "wait-timeout", 10*time.Minute, "give up waiting after this long")

	return cmd
}

// resumeUpload resolves the session to resume — explicit --upload-id, or the
// newest journal record for the file — and hands it to the engine.
func resumeUpload(
	ctx context.Context, engine *upload.Engine, journal *upload.Journal,
	uploadID, filePath string, opts upload.Options,
) (*api.Document, error) {
	if uploadID == "" {
		abs, err := filepath.Abs(filePath)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", filePath, err)
		}

		rec, err := journal.Lookup(resolvedCfg.ProjectID, abs)
		if err != nil {
			return nil, err
		}

		if rec == nil {
			return nil, fmt.Errorf("no interrupted upload found for %s", abs)
		}

		uploadID = rec.UploadID
	}

	return engine.Resume(ctx, uploadID, filePath, opts)
}

// finishUpload optionally waits for processing, then renders the documents.
func finishUpload(
	ctx context.Context, logger *slog.Logger, docs []api.Document,
	wait bool, waitTimeout time.Duration,
) error {
	if wait {
		client, _ := newAPIClient(logger)

		for i := range docs {
			doc, err := waitForDocument(ctx, client, docs[i].ID, waitTimeout)
			if err != nil {
				return err
			}

			docs[i] = *doc
		}
	}

	return renderDocuments(docs)
}

// progressPrinter returns a progress observer that redraws a single line on
// stderr, or nil when stderr isn't a terminal (logs would interleave) or
// quiet mode is on.
func progressPrinter() upload.ProgressFunc {
	if flagQuiet || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	return func(p upload.Progress) {
		pct := 0.0
		if p.TotalBytes > 0 {
			pct = float64(p.BytesCompleted) / float64(p.TotalBytes) * 100
		}

		fmt.Fprintf(os.Stderr, "\r%s  %3.0f%%  (%d/%d parts, %s/%s)",
			p.FileName, pct, p.PartsCompleted, p.TotalParts,
			formatSize(p.BytesCompleted), formatSize(p.TotalBytes))

		if p.PartsCompleted == p.TotalParts {
			fmt.Fprintln(os.Stderr)
		}
	}
}

// waitForDocument polls until the document leaves the processing state.
// A document that fails processing is reported as an error, not a result.
func waitForDocument(ctx context.Context, client *api.Client, documentID string, timeout time.Duration) (*api.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusf("Waiting for processing to finish...\n")

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		doc, err := client.Document(ctx, documentID)
		if err != nil {
			return nil, err
		}

		switch doc.Status {
		case api.DocumentStatusReady:
			return doc, nil
		case api.DocumentStatusFailed:
			return nil, fmt.Errorf("document %s failed processing: %s", doc.ID, doc.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("timed out waiting for document %s; check later with 'fz documents get %s'",
					documentID, documentID)
			}

			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
