package gemini

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemsync/pkg/asset"
	"gemsync/pkg/core"
)

const (
	testAPIKey = "account-key-0123456789"
	testSecret = "secret-0123456789abcdef"

	// baseMS is a whole second so second and millisecond windows line up.
	baseMS int64 = 1_600_000_000_000
)

type notification struct {
	Severity core.Severity
	Message  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notification
}

func (n *recordingNotifier) Notify(severity core.Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notification{Severity: severity, Message: message})
}

func (n *recordingNotifier) All() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.items)
}

func (n *recordingNotifier) Messages() []string {
	var out []string
	for _, item := range n.All() {
		out = append(out, item.Message)
	}
	return out
}

// decodePayload returns the signed JSON payload of a privileged request.
func decodePayload(t *testing.T, r *http.Request) map[string]any {
	raw, err := base64.StdEncoding.DecodeString(r.Header.Get(HeaderPayload))
	if !assert.NoError(t, err) {
		return nil
	}
	var payload map[string]any
	assert.NoError(t, sonic.Unmarshal(raw, &payload))
	return payload
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := sonic.Marshal(v)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// venue is an in-memory Gemini serving history pages the way the real API
// does: up to limit records at or after the cursor, newest first.
type venue struct {
	t *testing.T

	mu        sync.Mutex
	calls     map[string]int
	symbols   []string
	trades    map[string][]map[string]any
	transfers []map[string]any
	balances  any
	roles     any
	status    map[string]int
}

func newVenue(t *testing.T) *venue {
	return &venue{
		t:       t,
		calls:   make(map[string]int),
		symbols: []string{"btcusd"},
		trades:  make(map[string][]map[string]any),
		status:  make(map[string]int),
		roles:   map[string]any{"isAuditor": true},
	}
}

func (v *venue) Calls(key string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[key]
}

func (v *venue) SetStatus(key string, status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status[key] = status
}

func (v *venue) ClearStatus(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.status, key)
}

func (v *venue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Path[len("/v1/"):]
	key := endpoint

	var payload map[string]any
	if endpoint != endpointSymbols {
		assert.Equal(v.t, http.MethodPost, r.Method)
		assert.Equal(v.t, testAPIKey, r.Header.Get(HeaderAPIKey))
		payload = decodePayload(v.t, r)
		if symbol, ok := payload["symbol"].(string); ok {
			key = endpoint + ":" + symbol
		}
	}

	v.mu.Lock()
	v.calls[key]++
	status, forced := v.status[key]
	if !forced {
		status, forced = v.status[endpoint]
	}
	v.mu.Unlock()

	if forced {
		writeJSON(w, status, map[string]any{"result": "error", "reason": "Forced", "message": "forced failure"})
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch endpoint {
	case endpointSymbols:
		writeJSON(w, http.StatusOK, v.symbols)
	case endpointRoles:
		writeJSON(w, http.StatusOK, v.roles)
	case endpointBalances:
		writeJSON(w, http.StatusOK, v.balances)
	case endpointTrades:
		symbol, _ := payload["symbol"].(string)
		writeJSON(w, http.StatusOK, page(v.trades[symbol], payload))
	case endpointTransfers:
		writeJSON(w, http.StatusOK, page(v.transfers, payload))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func page(records []map[string]any, payload map[string]any) []map[string]any {
	cursor := int64(payload[cursorKey].(float64))
	limit := int(payload[pageLimitKey].(float64))

	var selected []map[string]any
	for _, rec := range records {
		if recordMS(rec) >= cursor {
			selected = append(selected, rec)
		}
	}
	slices.SortFunc(selected, func(a, b map[string]any) int {
		return int(recordMS(a) - recordMS(b))
	})
	if len(selected) > limit {
		selected = selected[:limit]
	}
	slices.Reverse(selected)
	if selected == nil {
		selected = []map[string]any{}
	}
	return selected
}

func recordMS(rec map[string]any) int64 {
	switch v := rec["timestampms"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func tradeRecord(ms int64, side string, tid int64) map[string]any {
	return map[string]any{
		"timestamp":    ms / 1000,
		"timestampms":  ms,
		"type":         side,
		"amount":       "0.5",
		"price":        "10000.25",
		"fee_amount":   "0.75",
		"fee_currency": "USD",
		"tid":          tid,
	}
}

func transferRecord(ms int64, kind, currency, amount string, eid int64) map[string]any {
	return map[string]any{
		"timestampms": ms,
		"type":        kind,
		"currency":    currency,
		"amount":      amount,
		"eid":         eid,
	}
}

func newTestConfig(url string) *core.Config {
	return core.DefaultConfig().
		WithBaseURL(url).
		WithCredentials(&core.Credentials{APIKey: testAPIKey, SecretKey: testSecret}).
		WithRateLimit(0, time.Minute)
}

func newTestExchange(t *testing.T, handler http.Handler, opts ...Option) (*Exchange, *recordingNotifier) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	notifier := &recordingNotifier{}
	prices := asset.NewPrices()
	require.NoError(t, prices.Set("BTC", "50000"))
	require.NoError(t, prices.Set("ETH", "2000"))

	base := []Option{
		WithLogger(zerolog.Nop()),
		WithNotifier(notifier),
		WithResolver(asset.DefaultRegistry()),
		WithPriceOracle(prices),
		WithBackoffUnit(time.Millisecond),
	}
	ex, err := New(newTestConfig(server.URL), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })

	return ex, notifier
}
