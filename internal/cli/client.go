// Package cli is the HTTP client behind mobctl, the operator tool for the
// economy service.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL  string
	OpsToken string
	HTTP     *http.Client
}

func NewClient(baseURL, opsToken string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		OpsToken: opsToken,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) CreateEvent(ctx context.Context, title string, endTime time.Time, options []string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/ops/events", map[string]any{
		"title":    title,
		"end_time": endTime,
		"options":  options,
	}, &out)
	return out, err
}

func (c *Client) CloseEvent(ctx context.Context, eventID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/ops/events/%d/close", eventID), map[string]any{}, &out)
	return out, err
}

func (c *Client) SettleEvent(ctx context.Context, eventID, winningOptionID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/ops/events/%d/settle", eventID), map[string]any{
		"winning_option_id": winningOptionID,
	}, &out)
	return out, err
}

func (c *Client) SetGameEnabled(ctx context.Context, code string, enabled bool) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/ops/casino/games/"+url.PathEscape(code)+"/enabled", map[string]any{
		"enabled": enabled,
	}, &out)
	return out, err
}

func (c *Client) ListGames(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/ops/casino/games", nil, &out)
	return out, err
}

func (c *Client) NetWorth(ctx context.Context, userID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/ops/networth/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *Client) RunSweep(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/ops/sweeps/"+url.PathEscape(name), nil, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.OpsToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.OpsToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
