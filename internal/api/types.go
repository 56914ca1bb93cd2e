package api

// Wire types for backend resources. The API uses camelCase field names;
// internal naming follows Go conventions and translation happens here, at
// the boundary, via struct tags.

// Project is a container for documents, schemas, and webhooks.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// Document is an uploaded file plus its processing state.
type Document struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId,omitempty"`
	FileName      string `json:"fileName"`
	FileSizeBytes int64  `json:"fileSizeBytes,omitempty"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// Document processing states reported by the backend.
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

// Schema describes an extraction schema attached to a project.
type Schema struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"projectId,omitempty"`
	Name       string         `json:"name"`
	Version    int            `json:"version,omitempty"`
	Definition map[string]any `json:"definition,omitempty"`
	CreatedAt  string         `json:"createdAt,omitempty"`
}

// Webhook is a project-scoped event subscription.
type Webhook struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"projectId,omitempty"`
	URL       string   `json:"url"`
	Events    []string `json:"events,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// Run is an extraction run over one or more documents.
type Run struct {
	ID           string `json:"id"`
	ProjectID    string `json:"projectId,omitempty"`
	SchemaID     string `json:"schemaId,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// Run states reported by the backend.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunSpec selects what a new extraction run executes. SchemaID is required;
// everything else is optional and omitted from the wire when empty.
type RunSpec struct {
	SchemaID        string
	SchemaVersionID string
	PromptID        string
	PromptVersionID string
	WebhookID       string
	ExternalRunID   string
	Pipeline        string
	Params          map[string]any
}

// APIKey is an M2M credential for service integrations. ClientSecret is
// populated only in the creation response and cannot be retrieved again.
type APIKey struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ClientID     string   `json:"clientId,omitempty"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	KeyPrefix    string   `json:"keyPrefix,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	ExpiresAt    string   `json:"expiresAt,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
}

// SearchCitation points into the source material backing a search result.
type SearchCitation struct {
	Document string `json:"doc,omitempty"`
	Page     int    `json:"page,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	URL      string `json:"url,omitempty"`
}

// SearchResult is one natural-language search hit.
type SearchResult struct {
	Content   string           `json:"content"`
	Citations []SearchCitation `json:"citations,omitempty"`
}
