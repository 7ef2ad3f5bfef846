// Package openrouter is the thin HTTP binding to the upstream multi-model
// API: model listing, chat completion, and streaming chat completion.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/config"
	"github.com/recapd-ai/recapd/pkg/models"
)

// Client talks to an OpenRouter-compatible API.
type Client struct {
	baseURL string
	referer string
	title   string
	http    *http.Client
}

// New creates a Client from API configuration.
func New(cfg config.APIConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		referer: cfg.Referer,
		title:   cfg.Title,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path, apiKey string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
	return req, nil
}

// parseRateLimit reads rate-limit headers into a snapshot. Returns nil when
// the response carries none.
func parseRateLimit(h http.Header) *models.RateLimitSnapshot {
	if h.Get("X-RateLimit-Limit-Requests") == "" && h.Get("X-RateLimit-Remaining-Requests") == "" {
		return nil
	}
	snap := &models.RateLimitSnapshot{
		RequestsRemaining: atoiHeader(h, "X-RateLimit-Remaining-Requests"),
		RequestsLimit:     atoiHeader(h, "X-RateLimit-Limit-Requests"),
		TokensRemaining:   atoiHeader(h, "X-RateLimit-Remaining-Tokens"),
		TokensLimit:       atoiHeader(h, "X-RateLimit-Limit-Tokens"),
	}
	if reset := h.Get("X-RateLimit-Reset-Requests"); reset != "" {
		if sec, err := strconv.ParseInt(reset, 10, 64); err == nil {
			snap.ResetTime = time.Unix(sec, 0)
		}
	}
	return snap
}

func atoiHeader(h http.Header, key string) int {
	v, _ := strconv.Atoi(h.Get(key))
	return v
}

// classifyStatus maps a non-2xx response to the error taxonomy.
func classifyStatus(status int, body []byte) error {
	msg := upstreamMessage(body)
	switch {
	case status == http.StatusTooManyRequests:
		return apierr.WithStatus(apierr.CategoryRateLimit, status, fmt.Errorf("%w: %s", apierr.ErrRateLimited, msg))
	case status == http.StatusUnauthorized:
		return apierr.WithStatus(apierr.CategoryAPI, status, fmt.Errorf("%w: %s", apierr.ErrAuthFailed, msg))
	case status == http.StatusBadRequest:
		return apierr.WithStatus(apierr.CategoryAPI, status, fmt.Errorf("%w: %s", apierr.ErrInvalidRequest, msg))
	default:
		return apierr.WithStatus(apierr.CategoryAPI, status, fmt.Errorf("upstream error: %s", msg))
	}
}

func upstreamMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// ListModels fetches the full model catalog.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]models.ModelDescriptor, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", apiKey, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Newf(apierr.CategoryNetwork, "list models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Newf(apierr.CategoryNetwork, "read models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var out struct {
		Data []models.ModelDescriptor `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apierr.Newf(apierr.CategoryAPI, "parse models response: %w", err)
	}
	return out.Data, nil
}

// GetModel fetches a single catalog entry.
func (c *Client) GetModel(ctx context.Context, apiKey, id string) (*models.ModelDescriptor, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models/"+id, apiKey, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Newf(apierr.CategoryNetwork, "get model: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Newf(apierr.CategoryNetwork, "read model response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", apierr.ErrModelNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var out struct {
		Data models.ModelDescriptor `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apierr.Newf(apierr.CategoryAPI, "parse model response: %w", err)
	}
	return &out.Data, nil
}

// ChatCompletion sends a non-streaming chat completion. The returned
// snapshot is nil when the response carried no rate-limit headers.
func (c *Client) ChatCompletion(ctx context.Context, apiKey string, chatReq models.ChatCompletionRequest) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error) {
	chatReq.Stream = false
	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", apiKey, payload)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, apierr.Newf(apierr.CategoryNetwork, "chat completion: %w", err)
	}
	defer resp.Body.Close()

	snap := parseRateLimit(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, snap, apierr.Newf(apierr.CategoryNetwork, "read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, snap, classifyStatus(resp.StatusCode, body)
	}

	var out models.ChatCompletionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, snap, apierr.Newf(apierr.CategoryAPI, "parse completion response: %w", err)
	}
	return &out, snap, nil
}
