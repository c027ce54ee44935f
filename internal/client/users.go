package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/config"
)

// User is the profile snapshot taken from the users service at order
// creation time.
type User struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
	Email    string    `json:"email"`
}

// Users calls the users service. Both operations share the one "users"
// breaker, so a failing upstream trips them together.
type Users struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker
}

func NewUsers(cfg config.Upstream, tokens TokenSource) *Users {
	return &Users{
		baseURL: cfg.BaseURL,
		client:  newHTTPClient(cfg.ConnectTimeout, cfg.ResponseTimeout),
		tokens:  tokens,
		breaker: newBreaker("users", cfg),
	}
}

// FetchUser returns the user profile, ErrRemoteNotFound on 4xx, and
// ErrUnavailable when the call cannot complete.
func (u *Users) FetchUser(ctx context.Context, userID uuid.UUID) (User, error) {
	token, err := u.tokens.GetToken(ctx)
	if err != nil {
		return User{}, fmt.Errorf("client: failed to obtain token for users call: %w", err)
	}

	result, err := u.breaker.Execute(func() (interface{}, error) {
		return u.fetchUser(ctx, userID, token)
	})
	if err != nil {
		return User{}, breakerErr("users", err)
	}
	return result.(User), nil
}

// Exists reports whether the user is known to the users service.
func (u *Users) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	token, err := u.tokens.GetToken(ctx)
	if err != nil {
		return false, fmt.Errorf("client: failed to obtain token for users call: %w", err)
	}

	result, err := u.breaker.Execute(func() (interface{}, error) {
		return u.exists(ctx, userID, token)
	})
	if err != nil {
		return false, breakerErr("users", err)
	}
	return result.(bool), nil
}

func (u *Users) fetchUser(ctx context.Context, userID uuid.UUID, token string) (User, error) {
	url := fmt.Sprintf("%s/users/%s", u.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return User{}, fmt.Errorf("client: failed to build users request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := u.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("client: users request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		log.Warn().Stringer("user_id", userID).Int("status", resp.StatusCode).Msg("client: user not found in users-service")
		return User{}, fmt.Errorf("client: user %s not found: %w", userID, apperr.ErrRemoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("client: users-service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("client: failed to decode users response: %w", err)
	}
	return user, nil
}

func (u *Users) exists(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	url := fmt.Sprintf("%s/users/%s/exists", u.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("client: failed to build users request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := u.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("client: users request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		log.Warn().Stringer("user_id", userID).Int("status", resp.StatusCode).Msg("client: user existence check failed in users-service")
		return false, fmt.Errorf("client: user %s not found: %w", userID, apperr.ErrRemoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("client: users-service returned status %d", resp.StatusCode)
	}

	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("client: failed to decode users response: %w", err)
	}
	return body.Exists, nil
}
