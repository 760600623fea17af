// Package gateway adapts the external SMS provider's HTTP API. The provider
// accepts form-encoded sends with basic auth and reports delivery through
// the whendelivered callback URL.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErrors "github.com/unclebandit/smsconsole-backend/internal/errors"
)

type SendResult struct {
	ExternalID string `json:"id"`
	Status     string `json:"status"`
}

type Client interface {
	Send(ctx context.Context, to, message, from, deliveryCallbackURL string) (*SendResult, error)
	// Retry asks the provider to re-send a failed message. The provider
	// assigns a fresh id; issuing a second Send for the same logical
	// attempt is never correct.
	Retry(ctx context.Context, externalID string) (*SendResult, error)
}

type HTTPClient struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client
}

func NewHTTPClient(baseURL, username, password string) *HTTPClient {
	return &HTTPClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) Send(ctx context.Context, to, message, from, deliveryCallbackURL string) (*SendResult, error) {
	form := url.Values{}
	form.Set("to", to)
	form.Set("message", message)
	form.Set("from", from)
	if deliveryCallbackURL != "" {
		form.Set("whendelivered", deliveryCallbackURL)
	}
	return c.post(ctx, c.BaseURL+"/sms", form)
}

func (c *HTTPClient) Retry(ctx context.Context, externalID string) (*SendResult, error) {
	return c.post(ctx, fmt.Sprintf("%s/sms/%s/retry", c.BaseURL, url.PathEscape(externalID)), url.Values{})
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, form url.Values) (*SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", appErrors.ErrGatewayAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("gateway rejected request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result SendResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if result.ExternalID == "" {
		return nil, fmt.Errorf("gateway response missing message id")
	}
	return &result, nil
}

var _ Client = (*HTTPClient)(nil)
