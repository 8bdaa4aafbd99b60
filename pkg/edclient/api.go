package edclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every REST call.
const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// APIClient calls the REST API with the session's bearer token.
type APIClient struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPIClient parses baseURL (scheme and host, optionally a path prefix).
// A nil httpClient gets one with DefaultTimeout.
func NewAPIClient(baseURL string, httpClient *http.Client) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &APIClient{base: u, http: httpClient}, nil
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) HasToken() bool { return c.Token() != "" }

// BaseURL returns a copy of the configured base URL.
func (c *APIClient) BaseURL() *url.URL {
	u := *c.base
	return &u
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Message json.RawMessage `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Message) > 0 {
		var s string
		if json.Unmarshal(body.Message, &s) == nil {
			apiErr.Message = s
		} else {
			apiErr.Message = string(body.Message)
		}
	} else if len(raw) > 0 {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// Login exchanges credentials for a token and stores it on the client.
func (c *APIClient) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"login":    login,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

func (c *APIClient) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) Notifications(ctx context.Context) (*Inbox, error) {
	var inbox Inbox
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &inbox); err != nil {
		return nil, err
	}
	return &inbox, nil
}

func (c *APIClient) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/api/notifications/"+url.PathEscape(id)+"/read", struct{}{}, nil)
}

func (c *APIClient) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/api/notifications/read-all", struct{}{}, nil)
}

func (c *APIClient) EmergencyPatients(ctx context.Context) ([]EmergencyPatient, error) {
	var out []EmergencyPatient
	if err := c.do(ctx, http.MethodGet, "/api/emergency-patients", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePatientStatus sets the status of an emergency case.
func (c *APIClient) UpdatePatientStatus(ctx context.Context, id, status string) (*EmergencyPatient, error) {
	var p EmergencyPatient
	err := c.do(ctx, http.MethodPut, "/api/emergency-patients/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// WaitTime returns the server's textual wait estimate for a case.
func (c *APIClient) WaitTime(ctx context.Context, id string) (string, error) {
	var out struct {
		EstimatedWaitTime string `json:"estimatedWaitTime"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/emergency-patients/"+url.PathEscape(id)+"/wait-time", nil, &out); err != nil {
		return "", err
	}
	return out.EstimatedWaitTime, nil
}
