package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httpClient "gemsync/internal/http"
	"gemsync/internal/metrics"
	"gemsync/internal/ratelimit"
	"gemsync/pkg/core"
)

// Rate limiter buckets.
const (
	bucketPublic  = "public"
	bucketPrivate = "private"
)

// Response is the raw outcome of a request that reached the venue.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
}

// TransportConfig wires a Transport.
type TransportConfig struct {
	HTTP    *httpClient.Client
	BaseURL string
	// Signer signs privileged requests; nil means no credentials are configured.
	Signer *Signer
	// Limiter paces attempts client-side; nil disables pacing.
	Limiter *ratelimit.RateLimiter
	Metrics *metrics.Collector
	Logger  zerolog.Logger
	// RetryBudget is the number of attempts made while the venue answers 429.
	RetryBudget int
	// BackoffUnit scales the 429 backoff; one second unless set.
	BackoffUnit time.Duration
}

// Transport sends venue requests, retrying while the venue answers 429.
// Any other status is returned untouched for the caller to classify.
type Transport struct {
	http        *httpClient.Client
	baseURL     string
	signer      *Signer
	limiter     *ratelimit.RateLimiter
	metrics     *metrics.Collector
	logger      zerolog.Logger
	budget      int
	backoffUnit time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewTransport creates a Transport from cfg.
func NewTransport(cfg TransportConfig) *Transport {
	budget := cfg.RetryBudget
	if budget < 1 {
		budget = 1
	}
	unit := cfg.BackoffUnit
	if unit <= 0 {
		unit = time.Second
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(nil)
	}

	return &Transport{
		http:        cfg.HTTP,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		signer:      cfg.Signer,
		limiter:     cfg.Limiter,
		metrics:     m,
		logger:      cfg.Logger,
		budget:      budget,
		backoffUnit: unit,
		sleep:       sleepContext,
	}
}

// Send issues req. Connection failures are returned as remote errors without
// retrying. On 429 it sleeps budget/remaining backoff units and tries again;
// once the budget is spent the last 429 response is returned.
func (t *Transport) Send(ctx context.Context, req *core.Request) (*Response, error) {
	if req.RequireAuth && t.signer == nil {
		return nil, core.NewExchangeError(exchangeName, core.ErrorTypePermission, 0,
			fmt.Sprintf("no credentials configured for %s", req.Endpoint)).
			WithCode(core.ErrCodeNoCredentials).
			WithCause(core.ErrNoCredentials)
	}

	url := t.baseURL + req.Path
	bucket := bucketPublic
	if req.RequireAuth {
		bucket = bucketPrivate
	}

	for remaining := t.budget; ; remaining-- {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx, bucket); err != nil {
				return nil, t.connectionError(ctx, req, url, err)
			}
		}

		opts, err := t.requestOptions(req)
		if err != nil {
			return nil, err
		}

		raw, err := t.http.Do(ctx, req.Method, req.Path, opts...)
		if err != nil {
			t.metrics.ObserveRequest(req.Endpoint, 0)
			return nil, t.connectionError(ctx, req, url, err)
		}

		resp := &Response{
			StatusCode: raw.StatusCode(),
			Body:       raw.Bytes(),
			URL:        url,
		}
		t.metrics.ObserveRequest(req.Endpoint, resp.StatusCode)

		if resp.StatusCode != http.StatusTooManyRequests || remaining <= 1 {
			return resp, nil
		}

		wait := t.backoffUnit * time.Duration(t.budget) / time.Duration(remaining)
		t.metrics.ObserveRetry(req.Endpoint)
		loggerFrom(ctx, t.logger).Warn().
			Str("endpoint", req.Endpoint).
			Int("retries_left", remaining-1).
			Dur("backoff", wait).
			Msg("rate limited, backing off")

		if err := t.sleep(ctx, wait); err != nil {
			return nil, t.connectionError(ctx, req, url, err)
		}
	}
}

// requestOptions signs privileged requests afresh for every attempt.
func (t *Transport) requestOptions(req *core.Request) ([]httpClient.RequestOption, error) {
	if !req.RequireAuth {
		return nil, nil
	}
	signed, err := t.signer.SignNow(req.Path, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return []httpClient.RequestOption{httpClient.WithHeaders(signed.Headers())}, nil
}

func (t *Transport) connectionError(ctx context.Context, req *core.Request, url string, err error) error {
	loggerFrom(ctx, t.logger).Error().Err(err).Str("endpoint", req.Endpoint).Msg("gemini request failed")
	return core.NewRemoteError(exchangeName, 0,
		fmt.Sprintf("Gemini %s query at %s connection error: %v", strings.ToLower(req.Method), url, err)).
		WithCode(core.ErrCodeConnection).
		WithCause(err)
}

// loggerFrom prefers the call-scoped logger attached to ctx.
func loggerFrom(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
