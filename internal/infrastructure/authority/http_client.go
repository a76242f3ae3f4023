package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"livesession/internal/core/domain"
	"livesession/pkg/retry"

	"go.uber.org/zap"
)

// Client talks to the collaborator service over HTTP. During a call it
// is read-only; its main job is the authoritative status fetch backing
// the completion fallback.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *zap.SugaredLogger
}

func NewClient(baseURL string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

func (c *Client) FetchSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var out struct {
		Session *domain.Session `json:"session"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/api/v1/sessions/%s", id), &out)
	if err != nil {
		return nil, err
	}
	if out.Session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return out.Session, nil
}

func (c *Client) FetchStatus(ctx context.Context, id domain.SessionID) (domain.SessionStatus, error) {
	var out struct {
		Status domain.SessionStatus `json:"status"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/api/v1/sessions/%s/status", id), &out)
	if err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if c.logger != nil {
				c.logger.Warnw("authority request failed", "path", path, "error", err)
			}
			return fmt.Errorf("%w: %v", domain.ErrRelayUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(domain.ErrSessionNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("authority returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(fmt.Errorf("authority returned %d: %s", resp.StatusCode, body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode authority response: %w", err))
		}
		return nil
	})
}
