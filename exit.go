package main

import (
	"errors"

	"github.com/fluidzero/fz-cli/internal/api"
	"github.com/fluidzero/fz-cli/internal/auth"
	"github.com/fluidzero/fz-cli/internal/upload"
)

// Exit codes. Scripts branch on these, so the mapping is part of the CLI's
// contract and must stay stable.
const (
	exitOK           = 0
	exitGeneral      = 1
	exitUsage        = 2
	exitAuth         = 3
	exitNotFound     = 4
	exitValidation   = 5
	exitServer       = 6
	exitNetwork      = 7
	exitUploadFailed = 10
)

// usageError marks errors caused by how the command was invoked rather than
// by anything the backend said.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

// exitCode maps an error to the process exit code. Upload failures are
// checked first: they wrap transport and API errors but scripts care that
// the upload as a whole failed (and that it can be resumed).
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsage
	}

	var failed *upload.FailedError
	if errors.As(err, &failed) {
		return exitUploadFailed
	}

	switch {
	case errors.Is(err, auth.ErrNotConfigured),
		errors.Is(err, auth.ErrRefreshFailed),
		errors.Is(err, api.ErrUnauthorized),
		errors.Is(err, api.ErrForbidden):
		return exitAuth
	case errors.Is(err, api.ErrNotFound):
		return exitNotFound
	case errors.Is(err, api.ErrBadRequest),
		errors.Is(err, api.ErrConflict):
		return exitValidation
	case errors.Is(err, api.ErrThrottled),
		errors.Is(err, api.ErrServer):
		return exitServer
	case errors.Is(err, api.ErrNetwork):
		return exitNetwork
	default:
		return exitGeneral
	}
}
