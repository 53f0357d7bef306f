package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a device's reply we buffer. ESP
// firmware replies are small; anything larger is misbehaviour.
const maxResponseBytes = 64 * 1024

// Transport delivers a command payload to a device endpoint and returns
// the device's HTTP status and body. Implementations must honour the
// context deadline.
type Transport interface {
	Post(ctx context.Context, url string, payload any) (status int, body []byte, err error)
}

// HTTPTransport is the production Transport, speaking plain HTTP to
// devices on the local network.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

// Post sends a JSON POST to the device. A nil payload sends no body.
func (t *HTTPTransport) Post(ctx context.Context, url string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
