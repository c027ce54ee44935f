package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/config"
)

// expiryMargin is subtracted from the upstream-declared lifetime so the
// cached token is refreshed before it actually expires.
const expiryMargin = 30 * time.Second

const defaultExpiresIn = 60

// TokenProvider caches a single service-account bearer token. Concurrent
// callers that observe an expired cache share one upstream fetch via
// singleflight; none of them trigger a second request.
type TokenProvider struct {
	cfg    config.ServiceAccount
	client *http.Client
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func NewTokenProvider(cfg config.ServiceAccount, client *http.Client) *TokenProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenProvider{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

// GetToken returns the cached token, refreshing it when missing or expired.
func (p *TokenProvider) GetToken(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	v, err, _ := p.group.Do("service-account", func() (interface{}, error) {
		// Another caller may have refreshed while we waited for the flight.
		if token, ok := p.cached(); ok {
			return token, nil
		}

		token, expiresAt, err := p.fetchToken(ctx)
		if err != nil {
			return "", err
		}

		p.mu.Lock()
		p.token = token
		p.expiresAt = expiresAt
		p.mu.Unlock()

		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *TokenProvider) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" || !p.expiresAt.After(p.now()) {
		return "", false
	}
	return p.token, true
}

func (p *TokenProvider) fetchToken(ctx context.Context) (string, time.Time, error) {
	token, expiresAt, err := p.fetchClientCredentialsToken(ctx)
	if err == nil {
		return token, expiresAt, nil
	}

	if p.cfg.Username != "" && p.cfg.Password != "" {
		log.Warn().Err(err).Msg("auth: client credentials grant failed, falling back to password grant")
		return p.fetchPasswordToken(ctx)
	}

	return "", time.Time{}, err
}

func (p *TokenProvider) fetchClientCredentialsToken(ctx context.Context) (string, time.Time, error) {
	log.Debug().Str("client_id", p.cfg.ClientID).Msg("auth: requesting service account token")
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
	}
	return p.exchangeForToken(ctx, form)
}

func (p *TokenProvider) fetchPasswordToken(ctx context.Context) (string, time.Time, error) {
	log.Debug().Str("username", p.cfg.Username).Msg("auth: requesting password grant token")
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {p.cfg.PasswordClientID},
		"username":   {p.cfg.Username},
		"password":   {p.cfg.Password},
	}
	return p.exchangeForToken(ctx, form)
}

func (p *TokenProvider) exchangeForToken(ctx context.Context, form url.Values) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: token request failed: %w: %w", apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("auth: token endpoint returned status %d: %w", resp.StatusCode, apperr.ErrUnavailable)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to decode token response: %w: %w", apperr.ErrUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("auth: token response has no access_token: %w", apperr.ErrUnavailable)
	}

	expiresIn := body.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}
	expiresAt := p.now().Add(time.Duration(expiresIn)*time.Second - expiryMargin)

	return body.AccessToken, expiresAt, nil
}
