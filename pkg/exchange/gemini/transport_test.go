package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpClient "gemsync/internal/http"
	"gemsync/internal/metrics"
	"gemsync/internal/ratelimit"
	"gemsync/pkg/core"
)

type recordedSleeps struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newTestTransport(t *testing.T, url string, signer *Signer, m *metrics.Collector) *Transport {
	t.Helper()
	client, err := httpClient.NewClient(&httpClient.Config{
		BaseURL: url,
		Timeout: time.Second,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewTransport(TransportConfig{
		HTTP:        client,
		BaseURL:     url,
		Signer:      signer,
		Metrics:     m,
		Logger:      zerolog.Nop(),
		RetryBudget: 5,
		BackoffUnit: time.Second,
	})
}

func TestTransport_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	m := metrics.New(nil)
	tr := newTestTransport(t, server.URL, nil, m)
	sleeps := &recordedSleeps{}
	tr.sleep = sleeps.sleep

	resp, err := tr.Send(context.Background(), newEndpointRequest(endpointSymbols, nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, []time.Duration{
		time.Second,
		5 * time.Second / 4,
		5 * time.Second / 3,
		5 * time.Second / 2,
	}, sleeps.sleeps)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RateLimitRetries.WithLabelValues(endpointSymbols)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Requests.WithLabelValues(endpointSymbols, "429")))
}

func TestTransport_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`["btcusd"]`))
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL, nil, nil)
	tr.sleep = (&recordedSleeps{}).sleep

	resp, err := tr.Send(context.Background(), newEndpointRequest(endpointSymbols, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `["btcusd"]`, string(resp.Body))
	assert.Equal(t, server.URL+"/v1/symbols", resp.URL)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_OtherStatusesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("oops"))
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL, nil, nil)

	resp, err := tr.Send(context.Background(), newEndpointRequest(endpointSymbols, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_ConnectionErrorIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	m := metrics.New(nil)
	tr := newTestTransport(t, url, nil, m)
	sleeps := &recordedSleeps{}
	tr.sleep = sleeps.sleep

	_, err := tr.Send(context.Background(), newEndpointRequest(endpointSymbols, nil))
	require.Error(t, err)

	assert.True(t, core.IsRemoteError(err))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeConnection))
	assert.NotNil(t, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection error")
	assert.Empty(t, sleeps.sleeps)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(endpointSymbols, "error")))
}

func TestTransport_SignsEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	var nonces []string
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testAPIKey, r.Header.Get(HeaderAPIKey))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get(HeaderSignature))

		payload := decodePayload(t, r)
		assert.Equal(t, "/v1/roles", payload["request"])
		mu.Lock()
		nonces = append(nonces, payload["nonce"].(string))
		mu.Unlock()

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"isAuditor":true}`))
	}))
	defer server.Close()

	signer := newTestSigner()
	var tick atomic.Int64
	signer.SetClock(func() time.Time { return time.UnixMilli(baseMS + tick.Add(1)) })

	tr := newTestTransport(t, server.URL, signer, nil)
	tr.sleep = (&recordedSleeps{}).sleep

	resp, err := tr.Send(context.Background(), newEndpointRequest(endpointRoles, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, nonces, 2)
	assert.NotEqual(t, nonces[0], nonces[1])
}

func TestTransport_PrivateWithoutCredentials(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL, nil, nil)

	_, err := tr.Send(context.Background(), newEndpointRequest(endpointBalances, nil))
	require.Error(t, err)
	assert.True(t, core.IsPermissionError(err))
	assert.ErrorIs(t, err, core.ErrNoCredentials)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTransport_PublicRequestIsUnsigned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get(HeaderPayload))
		assert.Empty(t, r.Header.Get(HeaderSignature))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL, newTestSigner(), nil)

	resp, err := tr.Send(context.Background(), newEndpointRequest(endpointSymbols, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransport_CancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := tr.Send(ctx, newEndpointRequest(endpointSymbols, nil))
	require.Error(t, err)
	assert.True(t, core.IsRemoteError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransport_UsesLimiterBucket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL, newTestSigner(), nil)
	tr.limiter = ratelimit.New(10, time.Minute)

	_, err := tr.Send(context.Background(), newEndpointRequest(endpointSymbols, nil))
	require.NoError(t, err)
	_, err = tr.Send(context.Background(), newEndpointRequest(endpointBalances, nil))
	require.NoError(t, err)

	snapshot := tr.limiter.Metrics()
	assert.Equal(t, int32(2), snapshot.BucketCount)
	assert.Equal(t, int64(2), snapshot.AllowedRequests)
}
