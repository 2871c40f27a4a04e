package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient talks to the panel's REST API with bearer-token auth.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPClient creates a panel client. baseURL must not have a trailing
// slash.
func NewHTTPClient(baseURL, token string, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode panel request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build panel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("panel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("Panel request rejected")
		return fmt.Errorf("panel returned %d: %s", resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode panel response: %w", err)
	}
	return nil
}

var errNotFound = fmt.Errorf("panel: not found")

// response envelope shared by the panel's endpoints
type envelope[T any] struct {
	Response T `json:"response"`
}

func (c *HTTPClient) GetUserDevices(ctx context.Context, identity string) (*DeviceList, error) {
	var out envelope[DeviceList]
	path := "/api/hwid/devices/" + url.PathEscape(identity)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if err == errNotFound {
			return &DeviceList{}, nil
		}
		return nil, err
	}
	return &out.Response, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, req CreateUserRequest) (*RemoteUser, error) {
	var out envelope[RemoteUser]
	if err := c.do(ctx, http.MethodPost, "/api/users", req, &out); err != nil {
		return nil, err
	}
	return &out.Response, nil
}

func (c *HTTPClient) DeleteUser(ctx context.Context, identity string) (bool, error) {
	path := "/api/users/" + url.PathEscape(identity)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if err == errNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *HTTPClient) DeleteDevice(ctx context.Context, ownerIdentity, hwid string) error {
	body := map[string]string{"userUuid": ownerIdentity, "hwid": hwid}
	return c.do(ctx, http.MethodPost, "/api/hwid/devices/delete", body, nil)
}

func (c *HTTPClient) GetNode(ctx context.Context, nodeID string) (*Node, error) {
	var out envelope[Node]
	path := "/api/nodes/" + url.PathEscape(nodeID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out.Response, nil
}

func (c *HTTPClient) RestartNode(ctx context.Context, nodeID string) error {
	path := "/api/nodes/" + url.PathEscape(nodeID) + "/actions/restart"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}
