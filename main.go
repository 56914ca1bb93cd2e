package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fluidzero/fz-cli/internal/upload"
)

func main() {
	// Flags aren't parsed yet, so signal handling gets its own stderr logger
	// rather than the flag-configured one.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	err := newRootCmd().ExecuteContext(shutdownContext(context.Background(), logger))
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var failed *upload.FailedError
	if errors.As(err, &failed) {
		fmt.Fprintf(os.Stderr, "The upload session is still live — resume with: fz upload --resume --upload-id %s\n",
			failed.UploadID)
	}

	os.Exit(exitCode(err))
}
