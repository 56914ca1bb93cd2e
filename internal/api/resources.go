package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// createProjectRequest is the wire shape for project creation.
type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// createWebhookRequest is the wire shape for webhook creation.
type createWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
}

// createSchemaRequest is the wire shape for schema creation.
type createSchemaRequest struct {
	Name       string         `json:"name"`
	Definition map[string]any `json:"definition"`
}

// Projects lists all projects visible to the caller.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	c.logger.Info("creating project", slog.String("name", name))

	var out Project

	in := createProjectRequest{Name: name, Description: description}
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", in, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Project fetches a single project.
func (c *Client) Project(ctx context.Context, projectID string) (*Project, error) {
	var out Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	c.logger.Info("deleting project", slog.String("project_id", projectID))

	return c.doJSON(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(projectID), nil, nil)
}

// Documents lists a project's documents. status filters by processing state
// when non-empty.
func (c *Client) Documents(ctx context.Context, projectID, status string) ([]Document, error) {
	path := fmt.Sprintf("/api/projects/%s/documents", url.PathEscape(projectID))
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var out []Document
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Document fetches a single document.
func (c *Client) Document(ctx context.Context, documentID string) (*Document, error) {
	var out Document
	if err := c.doJSON(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(documentID), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteDocument deletes a document.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	c.logger.Info("deleting document", slog.String("document_id", documentID))

	return c.doJSON(ctx, http.MethodDelete, "/api/documents/"+url.PathEscape(documentID), nil, nil)
}

// Schemas lists a project's extraction schemas.
func (c *Client) Schemas(ctx context.Context, projectID string) ([]Schema, error) {
	var out []Schema

	path := fmt.Sprintf("/api/projects/%s/schemas", url.PathEscape(projectID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Schema fetches a single schema.
func (c *Client) Schema(ctx context.Context, schemaID string) (*Schema, error) {
	var out Schema
	if err := c.doJSON(ctx, http.MethodGet, "/api/schemas/"+url.PathEscape(schemaID), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateSchema creates a schema in a project from a JSON definition.
func (c *Client) CreateSchema(
	ctx context.Context, projectID, name string, definition map[string]any,
) (*Schema, error) {
	c.logger.Info("creating schema",
		slog.String("project_id", projectID),
		slog.String("name", name),
	)

	var out Schema

	path := fmt.Sprintf("/api/projects/%s/schemas", url.PathEscape(projectID))

	in := createSchemaRequest{Name: name, Definition: definition}
	if err := c.doJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteSchema deletes a schema.
func (c *Client) DeleteSchema(ctx context.Context, schemaID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/schemas/"+url.PathEscape(schemaID), nil, nil)
}

// Webhooks lists a project's webhooks.
func (c *Client) Webhooks(ctx context.Context, projectID string) ([]Webhook, error) {
	var out []Webhook

	path := fmt.Sprintf("/api/projects/%s/webhooks", url.PathEscape(projectID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// CreateWebhook subscribes a URL to project events.
func (c *Client) CreateWebhook(
	ctx context.Context, projectID, webhookURL string, events []string,
) (*Webhook, error) {
	c.logger.Info("creating webhook",
		slog.String("project_id", projectID),
		slog.String("url", webhookURL),
	)

	var out Webhook

	path := fmt.Sprintf("/api/projects/%s/webhooks", url.PathEscape(projectID))

	in := createWebhookRequest{URL: webhookURL, Events: events}
	if err := c.doJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteWebhook removes a webhook subscription.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/webhooks/"+url.PathEscape(webhookID), nil, nil)
}

// Runs lists a project's extraction runs.
func (c *Client) Runs(ctx context.Context, projectID string) ([]Run, error) {
	var out []Run

	path := fmt.Sprintf("/api/projects/%s/runs", url.PathEscape(projectID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Run fetches a single run.
func (c *Client) Run(ctx context.Context, runID string) (*Run, error) {
	var out Run
	if err := c.doJSON(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// createRunRequest is the wire shape for run creation.
type createRunRequest struct {
	SchemaID        string         `json:"schemaDefinitionId"`
	SchemaVersionID string         `json:"schemaVersionId,omitempty"`
	PromptID        string         `json:"promptDefinitionId,omitempty"`
	PromptVersionID string         `json:"promptVersionId,omitempty"`
	WebhookID       string         `json:"webhookConfigId,omitempty"`
	ExternalRunID   string         `json:"externalRunId,omitempty"`
	Pipeline        string         `json:"pipeline,omitempty"`
	InputParameters map[string]any `json:"inputParameters,omitempty"`
}

// createAPIKeyRequest is the wire shape for API key creation.
type createAPIKeyRequest struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes,omitempty"`
	ExpiresAt string   `json:"expiresAt,omitempty"`
}

// searchRequest is the wire shape for document search.
type searchRequest struct {
	Query            string `json:"query"`
	IncludeCitations bool   `json:"includeCitations"`
}

// searchResponse wraps the search hit list.
type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// CreateRun starts an extraction run in a project.
func (c *Client) CreateRun(ctx context.Context, projectID string, spec RunSpec) (*Run, error) {
	if spec.SchemaID == "" {
		return nil, fmt.Errorf("%w: run requires a schema", ErrBadRequest)
	}

	c.logger.Info("creating run",
		slog.String("project_id", projectID),
		slog.String("schema_id", spec.SchemaID),
	)

	var out Run

	path := fmt.Sprintf("/api/projects/%s/runs", url.PathEscape(projectID))

	in := createRunRequest{
		SchemaID:        spec.SchemaID,
		SchemaVersionID: spec.SchemaVersionID,
		PromptID:        spec.PromptID,
		PromptVersionID: spec.PromptVersionID,
		WebhookID:       spec.WebhookID,
		ExternalRunID:   spec.ExternalRunID,
		Pipeline:        spec.Pipeline,
		InputParameters: spec.Params,
	}
	if err := c.doJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CancelRun requests cancellation of an in-progress run.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	c.logger.Info("cancelling run", slog.String("run_id", runID))

	return c.doJSON(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

// APIKeys lists the organization's API keys.
func (c *Client) APIKeys(ctx context.Context) ([]APIKey, error) {
	var out []APIKey
	if err := c.doJSON(ctx, http.MethodGet, "/api/api-keys", nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// APIKey fetches a single API key. The secret is never included.
func (c *Client) APIKey(ctx context.Context, keyID string) (*APIKey, error) {
	var out APIKey
	if err := c.doJSON(ctx, http.MethodGet, "/api/api-keys/"+url.PathEscape(keyID), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateAPIKey creates an API key. The response is the only place the
// client secret ever appears.
func (c *Client) CreateAPIKey(ctx context.Context, name string, scopes []string, expiresAt string) (*APIKey, error) {
	c.logger.Info("creating API key", slog.String("name", name))

	var out APIKey

	in := createAPIKeyRequest{Name: name, Scopes: scopes, ExpiresAt: expiresAt}
	if err := c.doJSON(ctx, http.MethodPost, "/api/api-keys", in, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// RevokeAPIKey permanently revokes an API key.
func (c *Client) RevokeAPIKey(ctx context.Context, keyID string) error {
	c.logger.Info("revoking API key", slog.String("key_id", keyID))

	return c.doJSON(ctx, http.MethodDelete, "/api/api-keys/"+url.PathEscape(keyID), nil, nil)
}

// Search runs a natural-language query over processed documents. projectID
// scopes the search to one project when non-empty; otherwise the whole
// organization is searched.
func (c *Client) Search(ctx context.Context, projectID, query string, includeCitations bool) ([]SearchResult, error) {
	path := "/api/search"
	if projectID != "" {
		path = fmt.Sprintf("/api/projects/%s/search", url.PathEscape(projectID))
	}

	var out searchResponse

	in := searchRequest{Query: query, IncludeCitations: includeCitations}
	if err := c.doJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}

	return out.Results, nil
}
