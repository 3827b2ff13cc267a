// File: internal/payloadgen/client.go
// Package payloadgen talks to the external payload-generation service, which
// computes the coming school week (semester-aware dates and default slot
// assignments) and returns it as a week payload document.
package payloadgen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weifanh/classsync-cli/internal/config"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// payloadPath is the service route serving the generated week.
const payloadPath = "/api/tschool/payload"

const defaultRequestsPerMinute = 30

// bearerSource yields the Authorization bearer for service requests.
type bearerSource interface {
	Token(ctx context.Context) (string, error)
}

// Client fetches generated week payloads. Requests are paced so a retry
// storm upstream never hammers the service.
type Client struct {
	logger  *zap.Logger
	http    *http.Client
	baseURL string
	tokens  bearerSource
	limiter *rate.Limiter
}

// NewClient builds a Client from configuration. With an empty token URL the
// service is assumed public and no Authorization header is sent.
func NewClient(logger *zap.Logger, cfg config.PayloadServiceConfig) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var tokens bearerSource
	if cfg.TokenURL != "" {
		tokens = NewTokenSource(logger, httpClient, cfg.TokenURL)
	}

	return &Client{
		logger:  logger.Named("payload_client"),
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// FetchWeek retrieves and validates the generated week payload.
func (c *Client) FetchWeek(ctx context.Context) (*schedule.WeekPayload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+payloadPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building payload request: %w", err)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtaining bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting payload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payload service returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading payload response: %w", err)
	}
	payload, err := schedule.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("payload service sent an invalid document: %w", err)
	}

	c.logger.Info("Fetched generated week payload",
		zap.String("weekStart", payload.WeekStartISO),
		zap.Int("days", len(payload.Days)))
	return payload, nil
}
