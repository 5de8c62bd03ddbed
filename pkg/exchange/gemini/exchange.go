package gemini

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gemsync/internal/cache"
	httpClient "gemsync/internal/http"
	"gemsync/internal/metrics"
	"gemsync/internal/ratelimit"
	"gemsync/pkg/asset"
	"gemsync/pkg/core"
	"gemsync/pkg/exchange"
)

const auditorMessage = `Provided Gemini API key needs to have "Auditor" permission activated. ` +
	`Please log into your gemini account and create a key with the required permissions.`

// State is the connection lifecycle of an Exchange.
type State int

const (
	// StateUninitialized means the symbol list has not been fetched yet.
	StateUninitialized State = iota
	// StateInitialized means the symbol list is cached.
	StateInitialized
)

// String returns the string representation of the state.
func (s State) String() string {
	return [...]string{"UNINITIALIZED", "INITIALIZED"}[s]
}

// Exchange is the Gemini data-acquisition client. It is safe for concurrent use.
type Exchange struct {
	config     *core.Config
	httpClient *httpClient.Client
	transport  *Transport
	paginator  *Paginator
	normalizer *Normalizer
	notifier   core.Notifier
	metrics    *metrics.Collector
	logger     zerolog.Logger

	mu      sync.Mutex
	state   State
	symbols []string

	balanceCache *cache.TTL[[]core.Balance]
	balances     cache.Loader[[]core.Balance]
}

// Option is a functional option for configuring the Exchange.
type Option func(*Options)

// Options holds the collaborators and test hooks of an Exchange.
type Options struct {
	Logger      zerolog.Logger
	Notifier    core.Notifier
	Resolver    core.AssetResolver
	Oracle      core.PriceOracle
	Metrics     *metrics.Collector
	Clock       func() time.Time
	BackoffUnit time.Duration
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithNotifier sets where skipped-record and failed-query messages go.
// By default they are logged.
func WithNotifier(n core.Notifier) Option {
	return func(o *Options) {
		o.Notifier = n
	}
}

// WithResolver sets the asset resolver. Defaults to asset.DefaultRegistry.
func WithResolver(r core.AssetResolver) Option {
	return func(o *Options) {
		o.Resolver = r
	}
}

// WithPriceOracle sets the USD price source used for balances.
func WithPriceOracle(p core.PriceOracle) Option {
	return func(o *Options) {
		o.Oracle = p
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithClock sets the time source for nonces and the balance cache.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Clock = now
	}
}

// WithBackoffUnit scales the rate limit backoff, one second by default.
func WithBackoffUnit(d time.Duration) Option {
	return func(o *Options) {
		o.BackoffUnit = d
	}
}

// New creates a Gemini client. A nil config uses core.DefaultConfig.
func New(config *core.Config, opts ...Option) (*Exchange, error) {
	if config == nil {
		config = core.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Metrics == nil {
		options.Metrics = metrics.New(nil)
	}
	if options.Notifier == nil {
		options.Notifier = NewLogNotifier(options.Logger)
	}
	if options.Resolver == nil {
		options.Resolver = asset.DefaultRegistry()
	}
	if options.Oracle == nil {
		options.Oracle = asset.NewPrices()
	}

	logger := options.Logger.With().Str("exchange", exchangeName).Logger()

	client, err := httpClient.NewClient(&httpClient.Config{
		BaseURL: config.ResolvedBaseURL(),
		Timeout: config.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	var signer *Signer
	if config.Credentials != nil {
		signer = NewSigner(*config.Credentials)
		if options.Clock != nil {
			signer.SetClock(options.Clock)
		}
	}

	var rl *ratelimit.RateLimiter
	if config.RateLimitRequests > 0 {
		rl = ratelimit.New(config.RateLimitRequests, config.RateLimitPeriod)
		if config.PublicRateLimitRequests > 0 {
			rl.SetBucketLimit(bucketPublic, config.PublicRateLimitRequests, config.RateLimitPeriod)
		}
	}

	transport := NewTransport(TransportConfig{
		HTTP:        client,
		BaseURL:     config.ResolvedBaseURL(),
		Signer:      signer,
		Limiter:     rl,
		Metrics:     options.Metrics,
		Logger:      logger,
		RetryBudget: config.RetryBudget,
		BackoffUnit: options.BackoffUnit,
	})

	e := &Exchange{
		config:       config,
		httpClient:   client,
		transport:    transport,
		paginator:    NewPaginator(transport, options.Metrics, logger),
		normalizer:   NewNormalizer(options.Resolver, options.Oracle, options.Notifier, options.Metrics, logger),
		notifier:     options.Notifier,
		metrics:      options.Metrics,
		logger:       logger,
		balanceCache: cache.NewTTL[[]core.Balance](config.BalanceCacheTTL),
	}
	if options.Clock != nil {
		e.balanceCache.SetClock(options.Clock)
	}
	e.balances = cache.Serialized(cache.Cached(e.balanceCache, e.fetchBalances))

	return e, nil
}

// Name returns the exchange identifier "gemini".
func (e *Exchange) Name() string {
	return exchangeName
}

// Close releases the HTTP client. Later calls fail with core.ErrClientClosed.
func (e *Exchange) Close() error {
	return e.httpClient.Close()
}

// State reports the connection lifecycle state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// FirstConnection fetches and caches the venue's trading pair symbols.
// It is a no-op once the client is initialized.
func (e *Exchange) FirstConnection(ctx context.Context) (err error) {
	ctx, done := e.begin(ctx, core.OpFirstConnection)
	defer func() { done(err) }()

	return e.EnsureInitialized(ctx)
}

// EnsureInitialized fetches the symbol list unless already cached. Concurrent
// first callers share a single request. A failed fetch leaves the client
// uninitialized so a later call retries.
func (e *Exchange) EnsureInitialized(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateInitialized {
		return nil
	}

	req := newEndpointRequest(endpointSymbols, nil)
	resp, err := e.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := checkStatus(req, resp); err != nil {
		return err
	}
	symbols, err := decodeJSON[[]string](resp)
	if err != nil {
		return err
	}

	e.symbols = symbols
	e.state = StateInitialized
	zerolog.Ctx(ctx).Debug().Int("symbols", len(symbols)).Msg("gemini client initialized")
	return nil
}

// Symbols returns the venue's trading pair symbols, initializing the client if needed.
func (e *Exchange) Symbols(ctx context.Context) ([]string, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.symbols), nil
}

// ValidateAPIKey checks that the key carries the Auditor role. The message
// explains how to fix the key, or carries the remote error text.
func (e *Exchange) ValidateAPIKey(ctx context.Context) (ok bool, msg string) {
	var err error
	ctx, done := e.begin(ctx, core.OpValidateAPIKey)
	defer func() { done(err) }()

	req := newEndpointRequest(endpointRoles, nil)
	resp, err := e.transport.Send(ctx, req)
	if err == nil {
		err = checkStatus(req, resp)
	}
	if err != nil {
		if core.IsPermissionError(err) {
			return false, auditorMessage
		}
		return false, errorText(err)
	}

	roles, err := decodeJSON[rolesResponse](resp)
	if err != nil {
		return false, errorText(err)
	}
	if !roles.IsAuditor {
		return false, auditorMessage
	}
	return true, ""
}

// QueryBalances returns non-zero balances with their USD value. Concurrent
// calls are serialized and successful snapshots are served from memory for
// the configured TTL. On failure it returns nil and a message.
func (e *Exchange) QueryBalances(ctx context.Context) ([]core.Balance, string) {
	var err error
	ctx, done := e.begin(ctx, core.OpQueryBalances)
	defer func() { done(err) }()

	balances, err := e.balances(ctx)
	if err != nil {
		msg := "Gemini API request failed. " + errorText(err)
		zerolog.Ctx(ctx).Error().Err(err).Msg(msg)
		return nil, msg
	}
	return slices.Clone(balances), ""
}

func (e *Exchange) fetchBalances(ctx context.Context) ([]core.Balance, error) {
	req := newEndpointRequest(endpointBalances, nil)
	resp, err := e.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}
	items, err := decodeList(resp)
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeBalances(ctx, items), nil
}

// QueryTradeHistory returns the account trades between start and end across
// all venue symbols, oldest first. A symbol whose history cannot be fetched is
// reported and contributes no trades. Only a failed bootstrap is returned.
func (e *Exchange) QueryTradeHistory(ctx context.Context, start, end time.Time) (trades []core.Trade, err error) {
	ctx, done := e.begin(ctx, core.OpQueryTradeHistory)
	defer func() { done(err) }()

	symbols, err := e.Symbols(ctx)
	if err != nil {
		return nil, err
	}

	for _, symbol := range symbols {
		records, err := e.paginator.Paginate(ctx, endpointTrades, start, end, core.Params{"symbol": symbol})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			switch {
			case core.IsPermissionError(err):
				e.notifier.Notify(core.SeverityError,
					"Got permission error while querying Gemini for trades: "+errorText(err))
			case core.IsRemoteError(err):
				e.notifier.Notify(core.SeverityError,
					"Got remote error while querying Gemini for trades: "+errorText(err))
			default:
				return nil, err
			}
			zerolog.Ctx(ctx).Error().Err(err).Str("symbol", symbol).Msg("skipping symbol")
			continue
		}
		trades = append(trades, e.normalizer.NormalizeTrades(symbol, records, end)...)
	}

	slices.SortStableFunc(trades, func(a, b core.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return trades, nil
}

// QueryDepositsWithdrawals returns the account deposits and withdrawals between
// start and end, oldest first.
func (e *Exchange) QueryDepositsWithdrawals(ctx context.Context, start, end time.Time) (movements []core.AssetMovement, err error) {
	ctx, done := e.begin(ctx, core.OpQueryDepositsWithdrawals)
	defer func() { done(err) }()

	records, err := e.paginator.Paginate(ctx, endpointTransfers, start, end, nil)
	if err != nil {
		return nil, err
	}
	return e.normalizer.NormalizeMovements(records), nil
}

// begin attaches a correlation id logger to ctx and returns a func that
// records the operation's duration and outcome.
func (e *Exchange) begin(ctx context.Context, op core.Operation) (context.Context, func(error)) {
	start := time.Now()
	logger := e.logger.With().
		Str("call_id", uuid.NewString()).
		Str("operation", op.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	logger.Debug().Msg("operation started")
	return ctx, func(err error) {
		e.metrics.ObserveOperation(op.String(), start, err)
		ev := logger.Debug()
		if err != nil {
			ev = logger.Error().Err(err)
		}
		ev.Dur("elapsed", time.Since(start)).Msg("operation finished")
	}
}

// Register creates a gemini Exchange and registers it with the container
// under the config's exchange name.
func Register(container *exchange.Container, config *core.Config, opts ...Option) (*Exchange, error) {
	ex, err := New(config, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini exchange: %w", err)
	}
	container.Register(ex.config.Exchange, ex)
	return ex, nil
}
