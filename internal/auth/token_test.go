package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/config"
)

func tokenServer(t *testing.T, calls *int64, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenProvider_ConcurrentCallersShareOneFetch(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		// Slow response widens the window in which callers pile up.
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":300}`)
	})

	provider := NewTokenProvider(config.ServiceAccount{TokenURL: srv.URL, ClientID: "api", ClientSecret: "secret"}, nil)

	const workers = 25
	tokens := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = provider.GetToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestTokenProvider_CachesUntilExpiry(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":120}`, atomic.LoadInt64(&calls))
	})

	provider := NewTokenProvider(config.ServiceAccount{TokenURL: srv.URL, ClientID: "api", ClientSecret: "secret"}, nil)
	base := time.Now()
	provider.now = func() time.Time { return base }

	first, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first)

	// 120s lifetime minus the 30s margin keeps the token valid until base+90s.
	provider.now = func() time.Time { return base.Add(89 * time.Second) }
	cached, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cached)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	provider.now = func() time.Time { return base.Add(91 * time.Second) }
	refreshed, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", refreshed)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestTokenProvider_DefaultLifetimeWhenUpstreamOmitsIt(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok-1"}`)
	})

	provider := NewTokenProvider(config.ServiceAccount{TokenURL: srv.URL, ClientID: "api", ClientSecret: "secret"}, nil)
	base := time.Now()
	provider.now = func() time.Time { return base }

	_, err := provider.GetToken(context.Background())
	require.NoError(t, err)

	// 60s default minus the 30s margin leaves the token cached for 30s.
	provider.now = func() time.Time { return base.Add(29 * time.Second) }
	token, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestTokenProvider_PasswordGrantFallback(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grant := r.PostForm.Get("grant_type")
		grants = append(grants, grant)
		if grant != "password" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "frontend", r.PostForm.Get("client_id"))
		assert.Equal(t, "svc-user", r.PostForm.Get("username"))
		fmt.Fprint(w, `{"access_token":"tok-pw","expires_in":300}`)
	}))
	defer srv.Close()

	provider := NewTokenProvider(config.ServiceAccount{
		TokenURL:         srv.URL,
		ClientID:         "api",
		ClientSecret:     "secret",
		Username:         "svc-user",
		Password:         "svc-pass",
		PasswordClientID: "frontend",
	}, nil)

	token, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-pw", token)
	assert.Equal(t, []string{"client_credentials", "password"}, grants)
}

func TestTokenProvider_FailureWithoutFallbackIsUnavailable(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	provider := NewTokenProvider(config.ServiceAccount{TokenURL: srv.URL, ClientID: "api", ClientSecret: "secret"}, nil)

	_, err := provider.GetToken(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestTokenProvider_EmptyTokenResponseIsRejected(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expires_in":300}`)
	})

	provider := NewTokenProvider(config.ServiceAccount{TokenURL: srv.URL, ClientID: "api", ClientSecret: "secret"}, nil)

	_, err := provider.GetToken(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}
