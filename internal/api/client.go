// Package api is the HTTP client for the NG12 decision-support backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/strrl/ng12-assist/pkg/models"
)

// Backend is the set of backend operations the client core depends on
type Backend interface {
	History(ctx context.Context, sessionID string) ([]string, error)
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
	Clear(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)
	Assess(ctx context.Context, patientID string) (*models.Assessment, error)
}

// SendRequest is the body of POST /api/chat
type SendRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	TopK      int    `json:"top_k,omitempty"`
}

// SendResponse is the body returned by POST /api/chat
type SendResponse struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
}

type historyResponse struct {
	History []string `json:"history"`
}

type sessionsResponse struct {
	Sessions []struct {
		SessionID  string `json:"session_id"`
		LastActive string `json:"last_active"`
	} `json:"sessions"`
}

type assessRequest struct {
	PatientID string `json:"patient_id"`
}

type assessResponse struct {
	Assessment string   `json:"assessment"`
	Reasoning  string   `json:"reasoning"`
	Citations  []string `json:"citations"`
}

// Client talks JSON over plain HTTP to the backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// History fetches the stored transcript lines for a session.
// A body that cannot be decoded is treated as an empty transcript.
func (c *Client) History(ctx context.Context, sessionID string) ([]string, error) {
	var out historyResponse
	err := c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(sessionID)+"/history", nil, &out, "Failed to load history")
	if err != nil {
		var decodeErr *decodeError
		if errors.As(err, &decodeErr) {
			return nil, nil
		}
		return nil, err
	}
	return out.History, nil
}

// Send posts one user turn and returns the agent's answer
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	var out SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out, "Failed to fetch"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Clear deletes the stored transcript for a session
func (c *Client) Clear(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/"+url.PathEscape(sessionID), nil, nil, "Failed to clear history")
}

// ListSessions returns every session the backend knows about
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	var out sessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out, "Failed to list sessions"); err != nil {
		return nil, err
	}

	summaries := make([]models.SessionSummary, 0, len(out.Sessions))
	for _, s := range out.Sessions {
		if s.SessionID == "" {
			continue
		}
		summaries = append(summaries, models.SessionSummary{
			ID:           s.SessionID,
			LastActiveAt: models.ParseLastActive(s.LastActive),
		})
	}
	return summaries, nil
}

// Assess runs a risk assessment for a patient
func (c *Client) Assess(ctx context.Context, patientID string) (*models.Assessment, error) {
	var out assessResponse
	if err := c.do(ctx, http.MethodPost, "/api/assess", assessRequest{PatientID: patientID}, &out, "Assessment failed"); err != nil {
		return nil, err
	}
	return &models.Assessment{
		PatientID: patientID,
		Label:     out.Assessment,
		Reasoning: out.Reasoning,
		Citations: out.Citations,
	}, nil
}

// do sends one request. fallback is the error message used when a failed
// response carries no detail.
func (c *Client) do(ctx context.Context, method, path string, body, out any, fallback string) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data, fallback)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return "failed to decode response: " + e.err.Error()
}

func (e *decodeError) Unwrap() error {
	return e.err
}
