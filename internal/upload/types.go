package upload

import (
	"fmt"

	"github.com/fluidzero/fz-cli/internal/api"
)

// Wire types for the four-step presigned upload protocol. Field names use
// the backend's camelCase convention; translation to internal naming happens
// here at the boundary.

// initRequest starts an upload session for a file.
type initRequest struct {
	FileName      string `json:"fileName"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	MimeType      string `json:"mimeType,omitempty"`
	SourceType    string `json:"sourceType,omitempty"`
}

// partURL is one presigned target in an init or resume response.
type partURL struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

// initResponse is the server's upload plan. A file below the single-part
// threshold yields a one-part plan with isSinglePart set; the engine treats
// it identically to a one-part multipart session.
type initResponse struct {
	UploadID     string    `json:"uploadId"`
	PartSize     int64     `json:"partSize"`
	TotalParts   int       `json:"totalParts"`
	IsSinglePart bool      `json:"isSinglePart"`
	Parts        []partURL `json:"parts"`
}

// reportRequest reports one transferred part's ETag to the backend.
type reportRequest struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
}

// resumeResponse describes the current completion status of a session:
// which parts are already reported and fresh presigned URLs for the rest.
type resumeResponse struct {
	UploadID       string    `json:"uploadId"`
	PartSize       int64     `json:"partSize"`
	TotalParts     int       `json:"totalParts"`
	IsSinglePart   bool      `json:"isSinglePart"`
	CompletedParts []int     `json:"completedParts"`
	Parts          []partURL `json:"parts"`
}

// completeResponse wraps the finalized document record.
type completeResponse struct {
	Document api.Document `json:"document"`
}

// part is the engine's internal unit of work: a byte range of the source
// file bound to a presigned URL. Part numbers are contiguous from 1.
type part struct {
	Number int
	URL    string
	Offset int64
	Size   int64
}

// buildParts derives byte ranges from the server's plan. The final part may
// be short; every other part is exactly partSize. A part whose number is
// non-positive or whose offset falls past the end of the file means the plan
// doesn't match the local file, which is rejected rather than transferred.
func buildParts(urls []partURL, partSize, fileSize int64) ([]part, error) {
	parts := make([]part, 0, len(urls))

	for _, u := range urls {
		if u.PartNumber < 1 {
			return nil, fmt.Errorf("malformed upload plan: part number %d", u.PartNumber)
		}

		offset := int64(u.PartNumber-1) * partSize

		size := partSize
		if remaining := fileSize - offset; remaining < size {
			size = remaining
		}

		if size <= 0 {
			return nil, fmt.Errorf("malformed upload plan: part %d starts past the end of the file", u.PartNumber)
		}

		parts = append(parts, part{
			Number: u.PartNumber,
			URL:    u.URL,
			Offset: offset,
			Size:   size,
		})
	}

	return parts, nil
}
