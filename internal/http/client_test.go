package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemsync/pkg/core"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(&Config{
		BaseURL: url,
		Timeout: time.Second,
		Headers: map[string]string{"Cache-Control": "no-cache"},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(&Config{BaseURL: "", Timeout: time.Second})
	assert.Error(t, err)

	_, err = NewClient(&Config{BaseURL: "http://localhost", Timeout: 0})
	assert.Error(t, err)
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/symbols", r.URL.Path)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`["btcusd"]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Get(context.Background(), "/v1/symbols")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, `["btcusd"]`, string(resp.Bytes()))
}

func TestClient_PostWithHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "payload", r.Header.Get("X-GEMINI-PAYLOAD"))
		assert.Equal(t, "sig", r.Header.Get("X-GEMINI-SIGNATURE"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Post(context.Background(), "/v1/roles",
		WithHeaders(map[string]string{"X-GEMINI-PAYLOAD": "payload"}),
		WithHeader("X-GEMINI-SIGNATURE", "sig"),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestClient_DoesNotRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Get(context.Background(), "/v1/symbols")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode())
	assert.Equal(t, 1, calls)
}

func TestClient_Closed(t *testing.T) {
	c, err := NewClient(&Config{BaseURL: "http://localhost", Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Get(context.Background(), "/v1/symbols")
	assert.ErrorIs(t, err, core.ErrClientClosed)
}
