// Package gateway implements the HTTP client for the remote data gateway.
// Every operation is an independent call that may succeed, fail or time out
// on its own, callers bound each one with its own context deadline.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const defaultHTTPTimeout = 30 * time.Second

// StatusError non-2xx response from the gateway, kept verbatim so callers
// can surface provider-specific detail.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Body)
}

// Client talks to the remote data gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a gateway client. The token is optional, when empty no
// Authorization header is sent.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// GetTradingConfig fetches the account-wide trading configuration.
func (c *Client) GetTradingConfig(ctx context.Context) (*TradingConfigPayload, error) {
	var payload TradingConfigPayload
	if err := c.getJSON(ctx, "/api/trading/config", nil, &payload); err != nil {
		return nil, errors.Wrap(err, "get trading config")
	}

	return &payload, nil
}

// GetCredentialStatus fetches the exchange credential record for the session.
func (c *Client) GetCredentialStatus(ctx context.Context, sessionID string) (*CredentialStatusPayload, error) {
	var payload CredentialStatusPayload
	path := "/api/users/" + url.PathEscape(sessionID) + "/exchange-credentials/status"
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return nil, errors.Wrap(err, "get credential status")
	}

	return &payload, nil
}

// GetProviderMap fetches the data-provider configuration for the session.
func (c *Client) GetProviderMap(ctx context.Context, sessionID string) (ProviderMapPayload, error) {
	var payload ProviderMapPayload
	path := "/api/users/" + url.PathEscape(sessionID) + "/providers"
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return nil, errors.Wrap(err, "get provider map")
	}

	return payload, nil
}

// GetLiveTrades fetches up to limit currently open trades.
func (c *Client) GetLiveTrades(ctx context.Context, limit int) ([]LiveTradePayload, error) {
	var payload []LiveTradePayload
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/trading/trades/live", params, &payload); err != nil {
		return nil, errors.Wrap(err, "get live trades")
	}

	return payload, nil
}

// GetActivityLog fetches the most recent limit activity events.
func (c *Client) GetActivityLog(ctx context.Context, limit int) ([]ActivityEventPayload, error) {
	var payload []ActivityEventPayload
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/activity", params, &payload); err != nil {
		return nil, errors.Wrap(err, "get activity log")
	}

	return payload, nil
}

// GetPerformanceStats fetches the opaque performance statistics blob for the
// session. The payload is passed through unmodified.
func (c *Client) GetPerformanceStats(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var payload json.RawMessage
	path := "/api/users/" + url.PathEscape(sessionID) + "/performance"
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return nil, errors.Wrap(err, "get performance stats")
	}

	return payload, nil
}

// SetAutoTrade switches automated trading on or off. The request id makes
// the action traceable through the gateway audit log.
func (c *Client) SetAutoTrade(ctx context.Context, enabled bool, requestID string) error {
	body, err := json.Marshal(map[string]bool{"enabled": enabled})
	if err != nil {
		return errors.Wrap(err, "marshal auto-trade request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/trading/auto-trade", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create auto-trade request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "set auto trade")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Body: readBody(resp.Body)}
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode, Body: readBody(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))

	return string(body)
}
