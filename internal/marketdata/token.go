package marketdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenURL      = "https://api.groww.in/v1/token/api/access"
	defaultTokenTTLSecs  = 86400
	tokenExchangeTimeout = 15 * time.Second
	tokenSingleflightKey = "token"
)

// TokenManagerOptions configure the credentialed token exchange.
type TokenManagerOptions struct {
	APIKey    string
	APISecret string
	TokenURL  string
}

// TokenManager caches exactly one bearer token with its expiry and refreshes
// it on demand. Concurrent callers observing an expired cache share a single
// exchange via singleflight.
type TokenManager struct {
	opts   TokenManagerOptions
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

// NewTokenManager constructs a token manager.
func NewTokenManager(opts TokenManagerOptions, logger zerolog.Logger) *TokenManager {
	if strings.TrimSpace(opts.TokenURL) == "" {
		opts.TokenURL = defaultTokenURL
	}
	return &TokenManager{
		opts:   opts,
		client: &http.Client{Timeout: tokenExchangeTimeout},
		logger: logger.With().Str("component", "token_manager").Logger(),
		now:    time.Now,
	}
}

// Configured reports whether key+secret are set, i.e. token exchange applies.
func (m *TokenManager) Configured() bool {
	return strings.TrimSpace(m.opts.APIKey) != "" && strings.TrimSpace(m.opts.APISecret) != ""
}

// AccessToken returns a valid bearer token. Without configured credentials it
// returns empty so the caller can fall back to a direct token on the data
// source. A cached unexpired token is returned as-is; otherwise one exchange
// runs and its result is shared by all waiters.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	if !m.Configured() {
		return "", nil
	}

	if token, ok := m.cached(); ok {
		return token, nil
	}

	result, err, _ := m.group.Do(tokenSingleflightKey, func() (any, error) {
		// re-check under the flight: a previous waiter may have refreshed
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && m.now().Before(m.expiresAt) {
		return m.token, true
	}
	return "", false
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        *int64 `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchange performs the form-encoded key/secret POST and caches the result.
func (m *TokenManager) exchange(ctx context.Context) (string, error) {
	m.logger.Info().Msg("fetching new access token using key+secret")

	form := url.Values{}
	form.Set("api_key", m.opts.APIKey)
	form.Set("api_secret", m.opts.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", Wrap(CodeTokenExchange, err, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", Wrap(CodeTokenExchange, err, "token exchange failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Wrap(CodeTokenExchange, err, "read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Code: CodeTokenExchange, Message: "token endpoint rejected exchange", Status: resp.StatusCode, Body: string(body)}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Wrap(CodeTokenExchange, err, "decode token response")
	}
	if parsed.Error != "" {
		return "", Errorf(CodeTokenExchange, "token error: %s - %s", parsed.Error, parsed.ErrorDescription)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", Errorf(CodeTokenExchange, "token response did not contain access_token")
	}

	expiresIn := int64(defaultTokenTTLSecs)
	if parsed.ExpiresIn != nil {
		expiresIn = *parsed.ExpiresIn
	}

	m.mu.Lock()
	m.token = parsed.AccessToken
	m.expiresAt = m.now().Add(time.Duration(expiresIn) * time.Second)
	m.mu.Unlock()

	m.logger.Info().Int64("expires_in", expiresIn).Msg("access token obtained")
	return parsed.AccessToken, nil
}
