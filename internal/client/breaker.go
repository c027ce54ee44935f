// Package client holds the HTTP clients for the catalog and users
// services. Every call goes through a named circuit breaker and carries
// the service-account token. When the breaker is open, or the call cannot
// complete, the fallback surfaces ErrUnavailable instead of synthesizing
// price or identity data.
package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/config"
)

// TokenSource supplies the bearer token attached to every outbound call.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// newBreaker builds a circuit breaker that trips once the failure ratio
// within the rolling window exceeds the configured threshold. A remote
// 4xx proves the upstream is healthy, so ErrRemoteNotFound is not counted
// as a failure.
func newBreaker(name string, cfg config.Upstream) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerProbes,
		Interval:    cfg.BreakerWindow,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperr.ErrRemoteNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("client: circuit breaker state changed")
		},
	})
}

// newHTTPClient bounds both the connect phase and the overall response time
// of upstream calls. Exceeding either surfaces as a transport error and is
// counted by the breaker.
func newHTTPClient(connectTimeout, responseTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: responseTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
		},
	}
}

// breakerErr maps breaker rejections and transport failures to the
// Unavailable class. Remote 4xx results pass through untouched.
func breakerErr(name string, err error) error {
	if errors.Is(err, apperr.ErrRemoteNotFound) {
		return err
	}
	log.Error().Err(err).Str("breaker", name).Msg("client: call failed, failing secure")
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.ErrUnavailable
	}
	if errors.Is(err, apperr.ErrUnavailable) {
		return err
	}
	return errors.Join(apperr.ErrUnavailable, err)
}
