// Package client is a Go SDK for the quiz-engine HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/terra-clan/quiz-engine/internal/gamification"
	"github.com/terra-clan/quiz-engine/internal/models"
)

// Client is a Go SDK for quiz-engine API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken starts the client with an existing access token
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new quiz-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-success response from the server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.Status, e.Code, e.Message)
}

// Token returns the current access token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the access token used for authenticated calls
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Register creates an account and keeps the returned token
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// Login signs in and keeps the returned token
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// Me returns the signed-in user's profile
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var out models.Profile
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTest starts a new test session
func (c *Client) StartTest(ctx context.Context, req models.StartTestRequest) (*models.StartTestResponse, error) {
	var out models.StartTestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tests/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSingleQuestion starts a session containing only questionID
func (c *Client) StartSingleQuestion(ctx context.Context, questionID string) (*models.StartTestResponse, error) {
	var out models.StartTestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tests/start-single-question/"+questionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer records the selected option for a question
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID string, selected int) error {
	req := models.SubmitAnswerRequest{QuestionID: questionID, SelectedOption: &selected}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tests/%s/answer", sessionID), req, nil)
}

// GetQuestion fetches the question at index within a session
func (c *Client) GetQuestion(ctx context.Context, sessionID string, index int) (*models.QuestionResponse, error) {
	var out models.QuestionResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tests/%s/question/%d", sessionID, index), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteTest completes a session and returns its result
func (c *Client) CompleteTest(ctx context.Context, sessionID string) (*models.ScoringResult, error) {
	var out models.ScoringResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tests/%s/complete", sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResult returns the result of a session
func (c *Client) GetResult(ctx context.Context, sessionID string) (*models.ScoringResult, error) {
	var out models.ScoringResult
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tests/%s/result", sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GamificationSummary returns the signed-in user's level, streak and targets
func (c *Client) GamificationSummary(ctx context.Context) (*gamification.Summary, error) {
	var out gamification.Summary
	if err := c.do(ctx, http.MethodGet, "/api/v1/gamification/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns the top users by average score
func (c *Client) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	var out []models.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, "/api/v1/leaderboard", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications lists the signed-in user's notifications, newest first
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var out []models.Notification
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do sends in as JSON and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !envelope.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}
	return nil
}
