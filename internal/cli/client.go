package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"runboat/internal/api"
	"runboat/internal/build"
)

// DefaultTimeout bounds every request made by Client.
const DefaultTimeout = 10 * time.Second

// Client talks to the HTTP API of a running controller.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the controller at endpoint. A nil
// httpClient gets one with DefaultTimeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		endpoint:   ResolveEndpoint(endpoint),
		httpClient: httpClient,
	}
}

// Endpoint returns the base URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ListBuilds returns every build known to the controller.
func (c *Client) ListBuilds(ctx context.Context) ([]build.Status, error) {
	var list api.BuildList
	if err := c.do(ctx, http.MethodGet, "/api/v1/builds", &list); err != nil {
		return nil, err
	}
	return list.Builds, nil
}

// GetBuild returns one build.
func (c *Client) GetBuild(ctx context.Context, id string) (build.Status, error) {
	var status build.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/builds/"+url.PathEscape(id), &status)
	return status, err
}

// Activity records access to a build, restarting it when stopped.
func (c *Client) Activity(ctx context.Context, id string) (build.Status, error) {
	var status build.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/builds/"+url.PathEscape(id)+"/activity", &status)
	return status, err
}

// Retry asks the controller to deploy a FAILED build again.
func (c *Client) Retry(ctx context.Context, id string) (build.Status, error) {
	var status build.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/builds/"+url.PathEscape(id)+"/retry", &status)
	return status, err
}

// Controller returns the control loop status.
func (c *Client) Controller(ctx context.Context) (api.ControllerStatus, error) {
	var status api.ControllerStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/controller", &status)
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	target := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyConnectionError(err, c.endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Endpoint:   target,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		var errResp api.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}
