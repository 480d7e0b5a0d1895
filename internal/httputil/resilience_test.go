package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBody struct {
	*strings.Reader
	closed bool
}

func (b *recordingBody) Close() error {
	b.closed = true
	return nil
}

// recordingTransport serves a fixed status and keeps every response body it
// handed out so tests can check they were closed.
type recordingTransport struct {
	status int
	bodies []*recordingBody
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body := &recordingBody{Reader: strings.NewReader("upstream failure")}
	t.bodies = append(t.bodies, body)
	return &http.Response{
		StatusCode: t.status,
		Body:       body,
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func fastBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func getRequest(t *testing.T, url string) func() (*http.Request, error) {
	t.Helper()
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

func TestDoWithResilience(t *testing.T) {
	t.Run("success passes the response through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		cfg := ClientConfig{Client: srv.Client(), Backoff: fastBackoff()}
		resp, err := DoWithResilience(context.Background(), cfg, NewBreaker("test"), getRequest(t, srv.URL))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("server errors are retried until success", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		cfg := ClientConfig{Client: srv.Client(), Backoff: fastBackoff()}
		resp, err := DoWithResilience(context.Background(), cfg, NewBreaker("test"), getRequest(t, srv.URL))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("retry budget is bounded", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cfg := ClientConfig{Client: srv.Client(), Backoff: fastBackoff()}
		_, err := DoWithResilience(context.Background(), cfg, NewBreaker("test"), getRequest(t, srv.URL))
		require.Error(t, err)
		// Initial attempt plus MaxRetries.
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cfg := ClientConfig{Client: srv.Client(), Backoff: fastBackoff()}
		_, err := DoWithResilience(ctx, cfg, NewBreaker("test"), getRequest(t, srv.URL))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("failed responses are closed before retrying", func(t *testing.T) {
		transport := &recordingTransport{status: http.StatusInternalServerError}
		cfg := ClientConfig{
			Client:  &http.Client{Transport: transport},
			Backoff: fastBackoff(),
		}

		_, err := DoWithResilience(context.Background(), cfg, NewBreaker("test"),
			getRequest(t, "http://upstream.invalid/"))
		require.Error(t, err)

		require.Len(t, transport.bodies, 3)
		for i, body := range transport.bodies {
			assert.True(t, body.closed, "attempt %d body left open", i+1)
		}
	})

	t.Run("missing client is rejected", func(t *testing.T) {
		_, err := DoWithResilience(context.Background(), ClientConfig{Backoff: fastBackoff()}, NewBreaker("test"), nil)
		assert.Error(t, err)
	})
}
