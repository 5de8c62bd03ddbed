package gemini

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"gemsync/pkg/core"
)

const exchangeName = string(core.LocationGemini)

// Endpoint names, relative to /v1/.
const (
	endpointSymbols   = "symbols"
	endpointBalances  = "balances"
	endpointTrades    = "mytrades"
	endpointTransfers = "transfers"
	endpointRoles     = "roles"
)

// Page sizes are fixed by the venue per endpoint. Both endpoints take the
// size under the limit_trades key.
const (
	tradesPageLimit    = 500
	transfersPageLimit = 50
	pageLimitKey       = "limit_trades"
	cursorKey          = "timestamp"
)

var privilegedEndpoints = map[string]bool{
	endpointBalances:  true,
	endpointTrades:    true,
	endpointTransfers: true,
	endpointRoles:     true,
}

// newEndpointRequest builds the request for a venue endpoint. Privileged
// endpoints are signed POSTs with an empty body, public ones are GETs.
func newEndpointRequest(endpoint string, payload core.Params) *core.Request {
	path := "/v1/" + endpoint
	if !privilegedEndpoints[endpoint] {
		return core.NewRequest(http.MethodGet, endpoint, path)
	}
	return core.NewRequest(http.MethodPost, endpoint, path).
		SetPayloadParams(payload).
		SetRequireAuth(true)
}

// checkStatus classifies a non-success response. Permission classification only
// applies to privileged endpoints.
func checkStatus(req *core.Request, resp *Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	if req.RequireAuth {
		switch {
		case resp.StatusCode == http.StatusForbidden:
			return core.NewPermissionError(exchangeName, resp.StatusCode,
				fmt.Sprintf("API key does not have permission for %s", req.Endpoint))
		case resp.StatusCode == http.StatusBadRequest && strings.Contains(string(resp.Body), "InvalidSignature"):
			return core.NewPermissionError(exchangeName, resp.StatusCode, "Invalid API Key or API secret").
				WithCode(core.ErrCodeInvalidSignature)
		}
	}

	return core.NewRemoteError(exchangeName, resp.StatusCode,
		fmt.Sprintf("Gemini query at %s responded with error status code: %d and text: %s",
			resp.URL, resp.StatusCode, resp.Body)).
		WithCode(core.ErrCodeStatus)
}

// decodeJSON decodes a success body into T. A body of the wrong shape is a remote error.
func decodeJSON[T any](resp *Response) (T, error) {
	var out T
	if err := sonic.Unmarshal(resp.Body, &out); err != nil {
		var zero T
		return zero, core.NewRemoteError(exchangeName, resp.StatusCode,
			fmt.Sprintf("Gemini query at %s returned invalid JSON response: %s", resp.URL, resp.Body)).
			WithCode(core.ErrCodeInvalidJSON).
			WithCause(err)
	}
	return out, nil
}

// decodeList decodes a JSON array body, leaving its elements undecoded.
func decodeList(resp *Response) ([]json.RawMessage, error) {
	return decodeJSON[[]json.RawMessage](resp)
}

// RawRecord is one undecoded element of a history page. The millisecond
// timestamp is read up front because pagination needs it before normalization.
type RawRecord struct {
	TimestampMS  int64
	HasTimestamp bool
	Body         json.RawMessage
}

type timestampProbe struct {
	TimestampMS number `json:"timestampms"`
}

// newRawRecord wraps a page element. An element without a readable timestampms
// is kept so the normalizer can report it.
func newRawRecord(body json.RawMessage) RawRecord {
	rec := RawRecord{Body: body}

	var probe timestampProbe
	if err := sonic.Unmarshal(body, &probe); err != nil || probe.TimestampMS == "" {
		return rec
	}
	ms, err := probe.TimestampMS.Int64()
	if err != nil {
		return rec
	}
	rec.TimestampMS = ms
	rec.HasTimestamp = true
	return rec
}

func newRawRecords(items []json.RawMessage) []RawRecord {
	records := make([]RawRecord, len(items))
	for i, item := range items {
		records[i] = newRawRecord(item)
	}
	return records
}

// number holds a numeric field that the venue sends either as a JSON number
// or as a numeric string. It keeps the literal text.
type number string

// UnmarshalJSON implements json.Unmarshaler.
func (n *number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = number(strings.TrimSpace(s))
		return nil
	}
	*n = number(data)
	return nil
}

// Int64 parses the value as an integer. Fractional values are truncated.
func (n number) Int64() (int64, error) {
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid integer %q", string(n))
	}
	return int64(f), nil
}

// Decimal parses the value as an exact decimal.
func (n number) Decimal() (apd.Decimal, error) {
	d, _, err := apd.NewFromString(string(n))
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("invalid decimal %q: %w", string(n), err)
	}
	if d.Form != apd.Finite {
		return apd.Decimal{}, fmt.Errorf("invalid decimal %q", string(n))
	}
	return *d, nil
}

type rolesResponse struct {
	IsAuditor bool `json:"isAuditor"`
}
