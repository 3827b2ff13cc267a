// File: internal/payloadgen/token.go
package payloadgen

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// refreshMargin is how long before expiry a cached token is considered
// stale, so a fetch never goes out with a token about to die mid-flight.
const refreshMargin = 30 * time.Second

// opaqueTokenTTL is the assumed lifetime for tokens that are not JWTs and
// carry no readable expiry.
const opaqueTokenTTL = 5 * time.Minute

// TokenSource obtains a bearer token from the token endpoint and caches it
// until shortly before it expires. The JWT is parsed unverified, only to
// read the expiry; the payload service is the one that verifies it.
type TokenSource struct {
	logger *zap.Logger
	client *http.Client
	url    string

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource builds a TokenSource against the given endpoint.
func NewTokenSource(logger *zap.Logger, client *http.Client, url string) *TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenSource{
		logger: logger.Named("token_source"),
		client: client,
		url:    url,
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token returns a bearer token, fetching a fresh one when the cached token
// is missing or near expiry.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expires.Add(-refreshMargin)) {
		return t.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var tr tokenResponse
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	t.token = tr.Token
	t.expires = tokenExpiry(tr.Token)
	t.logger.Debug("Bearer token refreshed", zap.Time("expires", t.expires))
	return t.token, nil
}

// tokenExpiry reads the exp claim from a JWT without verifying it. Opaque
// tokens get a conservative fixed lifetime.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Now().Add(opaqueTokenTTL)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(opaqueTokenTTL)
	}
	return exp.Time
}
