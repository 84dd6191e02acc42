// Package hub validates model identifiers against the model hub before a
// deployment is attempted.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ModelInfo is the outcome of a hub lookup.
type ModelInfo struct {
	// Canonical id as reported by the hub (may differ in case from the
	// requested id).
	ID string
	// Gated models require an authorized credential to download.
	Gated bool
}

// Validator checks that a model exists and is accessible. Implemented by
// Client; tests substitute a fake.
type Validator interface {
	Validate(ctx context.Context, modelID, credential string) (ModelInfo, error)
}

// DefaultBaseURL is the public HuggingFace API.
const DefaultBaseURL = "https://huggingface.co"

// Client queries the hub's REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{BaseURL: DefaultBaseURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

type modelResponse struct {
	ID      string `json:"id"`
	ModelID string `json:"modelId"`
	Gated   any    `json:"gated"` // `false` or a string like "auto"/"manual"
}

// Validate looks the model up on the hub. Unknown models get a search-based
// suggestion in the error when one exists.
func (c *Client) Validate(ctx context.Context, modelID, credential string) (ModelInfo, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return ModelInfo{}, fmt.Errorf("model id is empty")
	}

	var mr modelResponse
	status, err := c.getJSON(ctx, "/api/models/"+url.PathEscape(modelID), credential, &mr)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("hub request failed: %w", err)
	}
	switch {
	case status == http.StatusOK:
		info := ModelInfo{ID: mr.ID}
		if info.ID == "" {
			info.ID = mr.ModelID
		}
		if info.ID == "" {
			info.ID = modelID
		}
		info.Gated = gatedValue(mr.Gated)
		return info, nil
	case status == http.StatusNotFound:
		if suggestion := c.search(ctx, modelID, credential); suggestion != "" && suggestion != modelID {
			return ModelInfo{}, fmt.Errorf("model not found: %s (did you mean %s?)", modelID, suggestion)
		}
		return ModelInfo{}, fmt.Errorf("model not found: %s", modelID)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ModelInfo{}, fmt.Errorf("model %s is not accessible with the provided credential", modelID)
	default:
		return ModelInfo{}, fmt.Errorf("hub returned status %d for %s", status, modelID)
	}
}

// search returns the most-downloaded hit for a term, or "".
func (c *Client) search(ctx context.Context, term, credential string) string {
	var hits []modelResponse
	q := "/api/models?search=" + url.QueryEscape(term) + "&sort=downloads&direction=-1&limit=5"
	status, err := c.getJSON(ctx, q, credential, &hits)
	if err != nil || status != http.StatusOK || len(hits) == 0 {
		return ""
	}
	if hits[0].ID != "" {
		return hits[0].ID
	}
	return hits[0].ModelID
}

func (c *Client) getJSON(ctx context.Context, path, credential string, out any) (int, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return 0, err
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(credential))
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode hub response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// gatedValue interprets the hub's polymorphic gated field: false means open,
// any string ("auto", "manual") means gated.
func gatedValue(v any) bool {
	switch g := v.(type) {
	case bool:
		return g
	case string:
		return g != ""
	default:
		return false
	}
}
