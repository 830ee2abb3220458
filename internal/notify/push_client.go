package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushClient talks to the push gateway that fans messages out to devices.
type PushClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewPushClient(baseURL, apiKey string) *PushClient {
	return &PushClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type pushPayload struct {
	Token        string           `json:"token"`
	Notification pushNotification `json:"notification"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c *PushClient) Send(ctx context.Context, deviceToken, title, body string) error {
	payload := pushPayload{
		Token:        deviceToken,
		Notification: pushNotification{Title: title, Body: body},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	url := c.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Send: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Send: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Discard swallows notifications; wired when no push gateway is configured.
type Discard struct{}

func (Discard) Send(context.Context, string, string, string) error { return nil }
