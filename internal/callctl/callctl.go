// Package callctl is the client side of the server's call initiation
// API, used by the make-call command.
package callctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is the server's call initiation response body.
type Result struct {
	Status   string `json:"status"`
	CallUUID string `json:"call_uuid"`
	Message  string `json:"message"`
}

type Client struct {
	serverURL  string
	httpClient *http.Client
}

func New(serverURL string) *Client {
	return &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// MakeCall asks the server to dial phoneNumber and returns the provider
// call UUID. An empty phoneNumber lets the server use its configured
// default destination.
func (c *Client) MakeCall(ctx context.Context, phoneNumber string) (string, error) {
	var body []byte
	if phoneNumber != "" {
		var err error
		body, err = json.Marshal(map[string]string{"to": phoneNumber})
		if err != nil {
			return "", fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/start-call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("invalid server response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || result.Status != "success" {
		if result.Message != "" {
			return "", fmt.Errorf("call initiation failed: %s", result.Message)
		}
		return "", fmt.Errorf("call initiation failed with status %d", resp.StatusCode)
	}

	return result.CallUUID, nil
}
