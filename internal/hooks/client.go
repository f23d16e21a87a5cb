package hooks

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultServerURL = "http://127.0.0.1:8001"
	httpTimeout      = 5 * time.Second
	tokenHeader      = "X-Memory-Token"
)

// Client talks to the recall server.
type Client struct {
	http      *http.Client
	serverURL string
	token     string
}

// NewClient creates a hook HTTP client. Empty arguments fall back to
// RECALL_URL and RECALL_TOKEN, then to http://127.0.0.1:8001 with no token.
func NewClient(serverURL, token string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("RECALL_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	if token == "" {
		token = os.Getenv("RECALL_TOKEN")
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
		token:     token,
	}
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
