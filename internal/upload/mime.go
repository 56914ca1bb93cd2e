package upload

import (
	"mime"
	"path/filepath"
	"strings"
)

// defaultMimeType is sent when the extension is unknown; the backend
// sniffs content during processing anyway.
const defaultMimeType = "application/octet-stream"

// documentMimeTypes covers the document formats the service processes.
// Checked before the platform mime tables so results are deterministic
// across systems.
var documentMimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// detectMimeType guesses a file's MIME type from its extension.
func detectMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	if t, ok := documentMimeTypes[ext]; ok {
		return t
	}

	if t := mime.TypeByExtension(ext); t != "" {
		// Drop parameters like "; charset=utf-8".
		if i := strings.Index(t, ";"); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}

		return t
	}

	return defaultMimeType
}
