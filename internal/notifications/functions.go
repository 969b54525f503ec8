package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

const (
	pushNotificationPath     = "/send-push-notification"
	workflowOrchestratorPath = "/workflow-orchestrator"
)

// FunctionsClient calls the hosted push-notification and workflow functions.
type FunctionsClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewFunctionsClient(cfg config.FunctionsConfig, httpClient *http.Client) (*FunctionsClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("functions base url required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &FunctionsClient{baseURL: base, token: cfg.ServiceToken, http: httpClient}, nil
}

func (c *FunctionsClient) SendPush(ctx context.Context, n payloads.NotificationRequestedEvent) error {
	return c.post(ctx, pushNotificationPath, n)
}

func (c *FunctionsClient) RunWorkflow(ctx context.Context, w payloads.WorkflowTriggeredEvent) error {
	return c.post(ctx, workflowOrchestratorPath, w)
}

// StatusError is returned for non-2xx answers. 4xx answers other than 429
// will not succeed on retry.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (c *FunctionsClient) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}
