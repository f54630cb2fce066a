// Package platform talks to the remote actor platform's REST API and caches
// the metadata the dispatch path depends on. The accessor is deliberately
// thin: retries and business semantics (billing, scheduling) stay on the
// platform side.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Actor is the platform's metadata record for one actor.
type Actor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Public      bool   `json:"isPublic"`
	Rental      bool   `json:"isRental"`
}

// FullName is the stable human identifier, e.g. "acme/web-scraper".
func (a *Actor) FullName() string {
	return a.Username + "/" + a.Name
}

// ActorDefinition is an actor plus the build metadata needed to publish it
// as a tool.
type ActorDefinition struct {
	Actor                  Actor
	Input                  map[string]any
	DefaultRunMemoryMbytes int
}

// User identifies the token owner.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RunOptions bound one synchronous actor run.
type RunOptions struct {
	MemoryMbytes int
	Timeout      time.Duration
}

// APIError is a non-2xx platform response. 4xx-equivalent conditions are
// the caller's fault and classified as soft failures downstream.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api: %s (status %d)", e.Message, e.StatusCode)
}

// IsClientError reports a 4xx-equivalent condition.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// API is the platform surface the rest of the system depends on. Network
// failures and non-2xx responses surface as errors; *APIError carries the
// platform's own classification.
type API interface {
	GetActor(ctx context.Context, token, actorID string) (*Actor, error)
	GetActorDefinition(ctx context.Context, token, actorID string) (*ActorDefinition, error)
	GetCurrentUser(ctx context.Context, token string) (*User, error)
	RunActorSync(ctx context.Context, token, actorID string, input map[string]any, opts RunOptions) ([]json.RawMessage, error)
	SearchActors(ctx context.Context, token, query string, limit, offset int) ([]Actor, error)
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a platform client against baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = domain.DefaultPlatformBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("platform"),
	}
}

var _ API = (*Client)(nil)

// GetActor fetches actor metadata by id or full name.
func (c *Client) GetActor(ctx context.Context, token, actorID string) (*Actor, error) {
	var out struct {
		Data Actor `json:"data"`
	}
	path := "/v2/acts/" + url.PathEscape(pathID(actorID))
	if err := c.getJSON(ctx, token, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetActorDefinition fetches the actor plus its default build's input schema.
func (c *Client) GetActorDefinition(ctx context.Context, token, actorID string) (*ActorDefinition, error) {
	actor, err := c.GetActor(ctx, token, actorID)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			ActorDefinition struct {
				Input             map[string]any `json:"input"`
				DefaultRunOptions struct {
					MemoryMbytes int `json:"memoryMbytes"`
				} `json:"defaultRunOptions"`
			} `json:"actorDefinition"`
		} `json:"data"`
	}
	path := "/v2/acts/" + url.PathEscape(pathID(actorID)) + "/builds/default"
	if err := c.getJSON(ctx, token, path, nil, &out); err != nil {
		return nil, err
	}

	return &ActorDefinition{
		Actor:                  *actor,
		Input:                  out.Data.ActorDefinition.Input,
		DefaultRunMemoryMbytes: out.Data.ActorDefinition.DefaultRunOptions.MemoryMbytes,
	}, nil
}

// GetCurrentUser resolves the token owner.
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*User, error) {
	var out struct {
		Data User `json:"data"`
	}
	if err := c.getJSON(ctx, token, "/v2/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// RunActorSync runs an actor and returns its default dataset items.
func (c *Client) RunActorSync(ctx context.Context, token, actorID string, input map[string]any, opts RunOptions) ([]json.RawMessage, error) {
	query := url.Values{}
	if opts.MemoryMbytes > 0 {
		query.Set("memory", strconv.Itoa(opts.MemoryMbytes))
	}
	if opts.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(int(opts.Timeout.Seconds())))
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode actor input: %w", err)
	}

	path := "/v2/acts/" + url.PathEscape(pathID(actorID)) + "/run-sync-get-dataset-items"
	raw, err := c.do(ctx, http.MethodPost, path, query, bytes.NewReader(body), token)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	return items, nil
}

// SearchActors queries the public actor store.
func (c *Client) SearchActors(ctx context.Context, token, search string, limit, offset int) ([]Actor, error) {
	query := url.Values{}
	query.Set("search", search)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var out struct {
		Data struct {
			Items []Actor `json:"items"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, token, "/v2/store", query, &out); err != nil {
		return nil, err
	}
	return out.Data.Items, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values, out any) error {
	raw, err := c.do(ctx, http.MethodGet, path, query, nil, token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, token string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var wrapped struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error.Message != "" {
			apiErr.Type = wrapped.Error.Type
			apiErr.Message = wrapped.Error.Message
		}
		c.logger.Debug("platform request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return nil, apiErr
	}
	return raw, nil
}

// pathID converts "user/name" identifiers into the path-safe "user~name"
// form the API expects.
func pathID(actorID string) string {
	return strings.ReplaceAll(actorID, "/", "~")
}
