package upload

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // Content-MD5 is an integrity checksum, not a security control
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/fluidzero/fz-cli/internal/api"
)

// Defaults for transfer options.
const (
	DefaultConcurrency   = 4
	DefaultRetryAttempts = 3
)

// partRetryBase is the base delay for the per-part exponential backoff.
const partRetryBase = 1 * time.Second

// Options tune a single Upload or Resume call.
type Options struct {
	// Concurrency bounds the number of parts in flight. Defaults to
	// DefaultConcurrency when zero.
	Concurrency int

	// RetryAttempts is the total attempt budget per part (first try
	// included). Defaults to DefaultRetryAttempts when zero.
	RetryAttempts int

	// Progress, when set, observes transfer progress.
	Progress ProgressFunc
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}

	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}

	return o
}

// Engine drives the four-step presigned upload protocol: session init,
// parallel part transfer to storage, per-part ETag reporting, and session
// completion. Control-plane calls go through the authenticated backend
// client; part PUTs go straight to storage with no bearer token — the
// presigned URL is the authorization.
type Engine struct {
	backend *api.Client
	storage *http.Client
	journal *Journal
	logger  *slog.Logger

	// retryBase is the per-part backoff base. Tests shrink it.
	retryBase time.Duration
}

// NewEngine creates an upload engine. storage is the client used for
// presigned part PUTs; pass nil for http.DefaultClient. journal may be nil
// when resume support isn't wanted.
func NewEngine(backend *api.Client, storage *http.Client, journal *Journal, logger *slog.Logger) *Engine {
	if storage == nil {
		storage = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		backend:   backend,
		storage:   storage,
		journal:   journal,
		logger:    logger,
		retryBase: partRetryBase,
	}
}

// Upload transfers a local file into a project and returns the resulting
// document record. On failure the remote session is left intact and the
// returned FailedError carries the upload ID for a later Resume.
func (e *Engine) Upload(ctx context.Context, projectID, filePath string, opts Options) (*api.Document, error) {
	opts = opts.withDefaults()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", filePath, err)
	}

	f, info, err := openSource(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fileName := filepath.Base(absPath)
	mimeType := detectMimeType(absPath)

	plan, err := e.initSession(ctx, projectID, fileName, info.Size(), mimeType)
	if err != nil {
		return nil, err
	}

	e.logger.Info("upload session created",
		slog.String("upload_id", plan.UploadID),
		slog.String("file", fileName),
		slog.Int64("size_bytes", info.Size()),
		slog.Int("parts", plan.TotalParts),
	)

	if e.journal != nil {
		rec := &JournalRecord{
			UploadID:      plan.UploadID,
			ProjectID:     projectID,
			LocalPath:     absPath,
			FileName:      fileName,
			FileSizeBytes: info.Size(),
			PartSizeBytes: plan.PartSize,
			TotalParts:    plan.TotalParts,
		}
		if err := e.journal.Save(rec); err != nil {
			// The upload can proceed; only resumability is lost.
			e.logger.Warn("failed to journal upload session",
				slog.String("upload_id", plan.UploadID),
				slog.String("error", err.Error()),
			)
		}
	}

	tr := newTracker(opts.Progress, Progress{
		UploadID:   plan.UploadID,
		FileName:   fileName,
		TotalParts: plan.TotalParts,
		TotalBytes: info.Size(),
	})

	contentType := ""
	if plan.IsSinglePart {
		contentType = mimeType
	}

	parts, err := buildParts(plan.Parts, plan.PartSize, info.Size())
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", plan.UploadID, err)
	}

	if err := e.transfer(ctx, plan.UploadID, f, parts, contentType, opts, tr); err != nil {
		return nil, &FailedError{UploadID: plan.UploadID, Err: err}
	}

	doc, err := e.completeSession(ctx, plan.UploadID)
	if err != nil {
		return nil, &FailedError{UploadID: plan.UploadID, Err: err}
	}

	if e.journal != nil {
		if err := e.journal.Delete(plan.UploadID); err != nil {
			e.logger.Warn("failed to remove upload journal record",
				slog.String("upload_id", plan.UploadID),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("upload complete",
		slog.String("upload_id", plan.UploadID),
		slog.String("document_id", doc.ID),
	)

	return doc, nil
}

// Resume picks up an interrupted session: the backend reports which parts it
// already holds and issues fresh presigned URLs for the rest; only those are
// re-transferred. filePath may be empty when a journal record remembers the
// original local path.
func (e *Engine) Resume(ctx context.Context, uploadID, filePath string, opts Options) (*api.Document, error) {
	opts = opts.withDefaults()

	var rec *JournalRecord

	if e.journal != nil {
		var err error
		if rec, err = e.journal.Load(uploadID); err != nil && !errors.Is(err, ErrCorruptJournal) {
			return nil, err
		}
	}

	if filePath == "" {
		if rec == nil {
			return nil, fmt.Errorf("upload %s: no journal record; pass the file path explicitly", uploadID)
		}

		filePath = rec.LocalPath
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", filePath, err)
	}

	f, info, err := openSource(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if rec != nil && rec.FileSizeBytes != info.Size() {
		return nil, fmt.Errorf("upload %s: %s changed size since the upload began (%d -> %d bytes)",
			uploadID, absPath, rec.FileSizeBytes, info.Size())
	}

	var status resumeResponse
	if err := e.postJSON(ctx, "/api/uploads/"+url.PathEscape(uploadID)+"/resume", nil, &status); err != nil {
		return nil, err
	}

	pending, err := buildParts(status.Parts, status.PartSize, info.Size())
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", uploadID, err)
	}

	var doneBytes int64

	for _, pn := range status.CompletedParts {
		offset := int64(pn-1) * status.PartSize

		size := status.PartSize
		if remaining := info.Size() - offset; remaining < size {
			size = remaining
		}

		doneBytes += size
	}

	e.logger.Info("resuming upload",
		slog.String("upload_id", uploadID),
		slog.Int("completed_parts", len(status.CompletedParts)),
		slog.Int("pending_parts", len(pending)),
	)

	tr := newTracker(opts.Progress, Progress{
		UploadID:       uploadID,
		FileName:       filepath.Base(absPath),
		TotalParts:     status.TotalParts,
		PartsCompleted: len(status.CompletedParts),
		TotalBytes:     info.Size(),
		BytesCompleted: doneBytes,
	})

	contentType := ""
	if status.IsSinglePart {
		contentType = detectMimeType(absPath)
	}

	if err := e.transfer(ctx, uploadID, f, pending, contentType, opts, tr); err != nil {
		return nil, &FailedError{UploadID: uploadID, Err: err}
	}

	doc, err := e.completeSession(ctx, uploadID)
	if err != nil {
		return nil, &FailedError{UploadID: uploadID, Err: err}
	}

	if e.journal != nil {
		if err := e.journal.Delete(uploadID); err != nil {
			e.logger.Warn("failed to remove upload journal record",
				slog.String("upload_id", uploadID),
				slog.String("error", err.Error()),
			)
		}
	}

	return doc, nil
}

// openSource opens and validates the upload source file.
func openSource(absPath string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", absPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", absPath, err)
	}

	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", absPath)
	}

	if info.Size() == 0 {
		f.Close()
		return nil, nil, fmt.Errorf("%s is empty", absPath)
	}

	return f, info, nil
}

// initSession asks the backend for an upload plan.
func (e *Engine) initSession(
	ctx context.Context, projectID, fileName string, sizeBytes int64, mimeType string,
) (*initResponse, error) {
	in := initRequest{
		FileName:      fileName,
		FileSizeBytes: sizeBytes,
		MimeType:      mimeType,
		SourceType:    "cli",
	}

	var out initResponse

	path := fmt.Sprintf("/api/projects/%s/uploads/init", url.PathEscape(projectID))
	if err := e.postJSON(ctx, path, in, &out); err != nil {
		return nil, err
	}

	if out.UploadID == "" || out.PartSize <= 0 || len(out.Parts) == 0 {
		return nil, fmt.Errorf("backend returned malformed upload plan for %s", fileName)
	}

	return &out, nil
}

// transfer moves all given parts through a bounded worker pool. The first
// part failure (after its retry budget) cancels the remaining workers.
// Parts already in flight drain on their own.
func (e *Engine) transfer(
	ctx context.Context, uploadID string, f *os.File, parts []part,
	contentType string, opts Options, tr *tracker,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, p := range parts {
		p := p

		g.Go(func() error {
			// Don't claim new parts once a sibling has failed.
			if err := gctx.Err(); err != nil {
				return err
			}

			etag, err := e.transferPart(gctx, f, p, contentType, opts.RetryAttempts)
			if err != nil {
				return fmt.Errorf("part %d: %w", p.Number, err)
			}

			if err := e.reportPart(gctx, uploadID, p.Number, etag, p.Size); err != nil {
				return fmt.Errorf("reporting part %d: %w", p.Number, err)
			}

			tr.partDone(p.Size)

			return nil
		})
	}

	return g.Wait()
}

// transferPart reads one byte range and PUTs it to storage, retrying
// transient failures up to the attempt budget with exponential backoff.
func (e *Engine) transferPart(
	ctx context.Context, f *os.File, p part, contentType string, attempts int,
) (string, error) {
	buf := make([]byte, p.Size)
	if _, err := f.ReadAt(buf, p.Offset); err != nil {
		return "", fmt.Errorf("reading bytes %d-%d: %w", p.Offset, p.Offset+p.Size-1, err)
	}

	sum := md5.Sum(buf) //nolint:gosec // integrity checksum required by the storage backend
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(e.retryBase)) //nolint:gosec // attempts is small and positive
	backoff = retry.WithJitterPercent(25, backoff)

	var etag string

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error

		etag, err = e.putPart(ctx, p, buf, contentMD5, contentType)
		if err != nil {
			if retryablePutError(err) {
				e.logger.Warn("retrying part transfer",
					slog.Int("part", p.Number),
					slog.String("error", err.Error()),
				)

				return retry.RetryableError(err)
			}

			return err
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return etag, nil
}

// putPart performs a single presigned PUT. The response's ETag header is the
// part's receipt; its absence is a hard failure.
func (e *Engine) putPart(
	ctx context.Context, p part, data []byte, contentMD5, contentType string,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, partTimeout(p.Size))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building storage request: %w", err)
	}

	req.ContentLength = p.Size
	req.Header.Set("Content-MD5", contentMD5)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.storage.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage transport: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &storageError{Part: p.Number, Status: resp.StatusCode}
	}

	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	if etag == "" {
		return "", fmt.Errorf("storage returned no ETag for part %d", p.Number)
	}

	return etag, nil
}

// retryablePutError decides whether a part PUT failure is worth another
// attempt. Storage 4xx (other than 408/429) and a missing ETag are
// permanent; transport errors and storage 5xx are transient.
func retryablePutError(err error) bool {
	var se *storageError
	if errors.As(err, &se) {
		return retryableStorageStatus(se.Status)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Per-attempt deadline: let the budget decide. Caller cancellation
		// stops the retry loop via its own context.
		return true
	}

	var urlErr *url.Error

	return errors.As(err, &urlErr)
}

// reportPart tells the backend one part's storage receipt.
func (e *Engine) reportPart(ctx context.Context, uploadID string, partNumber int, etag string, sizeBytes int64) error {
	in := reportRequest{PartNumber: partNumber, ETag: etag, SizeBytes: sizeBytes}

	return e.postJSON(ctx, "/api/uploads/"+url.PathEscape(uploadID)+"/parts", in, nil)
}

// completeSession finalizes the session. A backend refusal because parts are
// missing maps to ErrIncomplete; the session stays resumable.
func (e *Engine) completeSession(ctx context.Context, uploadID string) (*api.Document, error) {
	var out completeResponse

	err := e.postJSON(ctx, "/api/uploads/"+url.PathEscape(uploadID)+"/complete", nil, &out)
	if err != nil {
		if errors.Is(err, api.ErrConflict) || errors.Is(err, api.ErrBadRequest) {
			return nil, fmt.Errorf("%w: %w", ErrIncomplete, err)
		}

		return nil, err
	}

	if out.Document.ID == "" {
		return nil, fmt.Errorf("backend returned no document for upload %s", uploadID)
	}

	return &out.Document, nil
}

// postJSON posts a JSON body through the authenticated backend client and
// decodes the JSON response into out (when non-nil).
func (e *Engine) postJSON(ctx context.Context, path string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s body: %w", path, err)
		}
	}

	resp, err := e.backend.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	return nil
}

// partTimeout scales a per-attempt deadline with part size so slow links get
// room while a wedged connection still fails promptly.
func partTimeout(sizeBytes int64) time.Duration {
	d := time.Duration(sizeBytes/(1<<20)+1) * 30 * time.Second
	if d < time.Minute {
		d = time.Minute
	}

	return d
}
