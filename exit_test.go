package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluidzero/fz-cli/internal/api"
	"github.com/fluidzero/fz-cli/internal/auth"
	"github.com/fluidzero/fz-cli/internal/upload"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain error", errors.New("boom"), exitGeneral},
		{"usage", &usageError{err: errors.New("bad flag")}, exitUsage},
		{"not configured", auth.ErrNotConfigured, exitAuth},
		{"refresh failed", fmt.Errorf("wrap: %w", auth.ErrRefreshFailed), exitAuth},
		{"unauthorized", api.ErrUnauthorized, exitAuth},
		{"forbidden", api.ErrForbidden, exitAuth},
		{"not found", fmt.Errorf("wrap: %w", api.ErrNotFound), exitNotFound},
		{"bad request", api.ErrBadRequest, exitValidation},
		{"conflict", api.ErrConflict, exitValidation},
		{"throttled", api.ErrThrottled, exitServer},
		{"server", api.ErrServer, exitServer},
		{"network", api.ErrNetwork, exitNetwork},
		{
			"upload failure", &upload.FailedError{UploadID: "u-1", Err: errors.New("part 3 gave up")},
			exitUploadFailed,
		},
		{
			// The upload code wins even when the cause is a classified API
			// error: the script-visible outcome is "the upload failed".
			"upload failure wrapping api error",
			&upload.FailedError{UploadID: "u-1", Err: fmt.Errorf("reporting part: %w", api.ErrServer)},
			exitUploadFailed,
		},
		{"upload incomplete", &upload.FailedError{UploadID: "u-1", Err: upload.ErrIncomplete}, exitUploadFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}
