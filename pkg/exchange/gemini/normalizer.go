package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"gemsync/internal/metrics"
	"gemsync/pkg/core"
)

// rawBalance is one entry of the balances endpoint.
type rawBalance struct {
	Currency string `json:"currency" validate:"required"`
	Amount   number `json:"amount" validate:"required"`
}

// rawTrade is one entry of the mytrades endpoint. Timestamp is in seconds.
type rawTrade struct {
	Timestamp   number `json:"timestamp" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Amount      number `json:"amount" validate:"required"`
	Price       number `json:"price" validate:"required"`
	FeeAmount   number `json:"fee_amount" validate:"required"`
	FeeCurrency string `json:"fee_currency" validate:"required"`
	TID         number `json:"tid" validate:"required"`
}

// rawTransfer is one entry of the transfers endpoint.
type rawTransfer struct {
	TimestampMS number `json:"timestampms" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Currency    string `json:"currency" validate:"required"`
	Amount      number `json:"amount" validate:"required"`
	Destination string `json:"destination"`
	TxHash      string `json:"txHash"`
	EID         number `json:"eid" validate:"required"`
}

type recordKind string

const (
	kindBalance  recordKind = "balance"
	kindTrade    recordKind = "trade"
	kindMovement recordKind = "movement"
)

// skipMessages are the user-facing notifications sent when a record is dropped.
type skipMessages struct {
	unknown     string
	unsupported string
	pair        string
	malformed   string
	logMessage  string
}

var messages = map[recordKind]skipMessages{
	kindBalance: {
		unknown:     "Found gemini balance result with unknown asset %s. Ignoring it.",
		unsupported: "Found gemini balance result with unsupported asset %s. Ignoring it.",
		malformed:   "Error processing a gemini balance. Check logs for details. Ignoring it.",
		logMessage:  "error processing a gemini balance",
	},
	kindTrade: {
		unknown:     "Found unknown Gemini asset %s. Ignoring the trade.",
		unsupported: "Found unsupported Gemini asset %s. Ignoring the trade.",
		pair:        "Found unprocessable Gemini pair %s. Ignoring the trade.",
		malformed:   "Failed to deserialize a gemini trade. Check logs for details. Ignoring it.",
		logMessage:  "error processing a gemini trade",
	},
	kindMovement: {
		unknown:     "Found gemini deposit/withdrawal with unknown asset %s. Ignoring it.",
		unsupported: "Found gemini deposit/withdrawal with unsupported asset %s. Ignoring it.",
		malformed:   "Error processing a gemini deposit/withdrawal. Check logs for details. Ignoring it.",
		logMessage:  "error processing a gemini deposit/withdrawal",
	},
}

// priceLookupError marks a balance dropped because its USD price was unavailable.
type priceLookupError struct {
	asset core.Asset
	err   error
}

func (e *priceLookupError) Error() string {
	return fmt.Sprintf("query USD price of %s: %v", e.asset, e.err)
}

func (e *priceLookupError) Unwrap() error { return e.err }

var recordValidator = newRecordValidator()

func newRecordValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalizer converts raw Gemini records into domain records. Batch methods
// never fail: a record that cannot be converted is reported to the notifier and
// dropped.
type Normalizer struct {
	resolver core.AssetResolver
	oracle   core.PriceOracle
	notifier core.Notifier
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewNormalizer creates a Normalizer. A nil collector records into an unregistered one.
func NewNormalizer(resolver core.AssetResolver, oracle core.PriceOracle, notifier core.Notifier,
	m *metrics.Collector, logger zerolog.Logger) *Normalizer {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Normalizer{
		resolver: resolver,
		oracle:   oracle,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// NormalizeBalance converts one balance entry. The boolean is false for a zero
// balance, which is dropped silently.
func (n *Normalizer) NormalizeBalance(ctx context.Context, body json.RawMessage) (core.Balance, bool, error) {
	var raw rawBalance
	if err := decodeRecord(body, &raw); err != nil {
		return core.Balance{}, false, err
	}

	amount, err := raw.Amount.Decimal()
	if err != nil {
		return core.Balance{}, false, malformed("amount", err)
	}
	if amount.IsZero() {
		return core.Balance{}, false, nil
	}

	asset, err := n.resolver.Resolve(core.NormalizeSymbol(raw.Currency))
	if err != nil {
		return core.Balance{}, false, err
	}

	price, err := n.oracle.USDPrice(ctx, asset)
	if err != nil {
		return core.Balance{}, false, &priceLookupError{asset: asset, err: err}
	}

	var usd apd.Decimal
	if _, err := apd.BaseContext.Mul(&usd, &amount, &price); err != nil {
		return core.Balance{}, false, malformed("amount", err)
	}

	return core.Balance{Asset: asset, Amount: amount, USDValue: usd}, true, nil
}

// NormalizeBalances converts a balance snapshot, skipping zero and failing entries.
func (n *Normalizer) NormalizeBalances(ctx context.Context, items []json.RawMessage) []core.Balance {
	balances := make([]core.Balance, 0, len(items))
	for _, item := range items {
		balance, ok, err := n.NormalizeBalance(ctx, item)
		if err != nil {
			n.skip(kindBalance, item, err)
			continue
		}
		if ok {
			balances = append(balances, balance)
		}
	}
	return balances
}

// NormalizeTrade converts one entry of symbol's trade history.
func (n *Normalizer) NormalizeTrade(symbol string, rec RawRecord) (core.Trade, error) {
	var raw rawTrade
	if err := decodeRecord(rec.Body, &raw); err != nil {
		return core.Trade{}, err
	}

	sec, err := raw.Timestamp.Int64()
	if err != nil {
		return core.Trade{}, malformed("timestamp", err)
	}

	pair, err := DecomposeSymbol(symbol, n.resolver)
	if err != nil {
		return core.Trade{}, err
	}

	side, err := parseSide(raw.Type)
	if err != nil {
		return core.Trade{}, err
	}

	amount, err := raw.Amount.Decimal()
	if err != nil {
		return core.Trade{}, malformed("amount", err)
	}
	rate, err := raw.Price.Decimal()
	if err != nil {
		return core.Trade{}, malformed("price", err)
	}
	fee, err := raw.FeeAmount.Decimal()
	if err != nil {
		return core.Trade{}, malformed("fee_amount", err)
	}

	feeAsset, err := n.resolver.Resolve(core.NormalizeSymbol(raw.FeeCurrency))
	if err != nil {
		return core.Trade{}, err
	}

	return core.Trade{
		Timestamp: time.Unix(sec, 0).UTC(),
		Location:  core.LocationGemini,
		Pair:      pair,
		Side:      side,
		Amount:    amount,
		Rate:      rate,
		Fee:       fee,
		FeeAsset:  feeAsset,
		Link:      string(raw.TID),
	}, nil
}

// NormalizeTrades converts symbol's oldest-first trade history and stops at the
// first trade after end.
func (n *Normalizer) NormalizeTrades(symbol string, records []RawRecord, end time.Time) []core.Trade {
	trades := make([]core.Trade, 0, len(records))
	for _, rec := range records {
		trade, err := n.NormalizeTrade(symbol, rec)
		if err != nil {
			if ts, ok := tradeTimestamp(rec.Body); ok && ts.After(end) {
				break
			}
			n.skip(kindTrade, rec.Body, err)
			continue
		}
		if trade.Timestamp.After(end) {
			break
		}
		trades = append(trades, trade)
	}
	return trades
}

// NormalizeMovement converts one transfer entry. Amounts are made non-negative
// and the fee is zero because the venue does not report withdrawal fees.
func (n *Normalizer) NormalizeMovement(rec RawRecord) (core.AssetMovement, error) {
	var raw rawTransfer
	if err := decodeRecord(rec.Body, &raw); err != nil {
		return core.AssetMovement{}, err
	}

	ms, err := raw.TimestampMS.Int64()
	if err != nil {
		return core.AssetMovement{}, malformed("timestampms", err)
	}

	asset, err := n.resolver.Resolve(core.NormalizeSymbol(raw.Currency))
	if err != nil {
		return core.AssetMovement{}, err
	}

	category, err := parseCategory(raw.Type)
	if err != nil {
		return core.AssetMovement{}, err
	}

	amount, err := raw.Amount.Decimal()
	if err != nil {
		return core.AssetMovement{}, malformed("amount", err)
	}
	amount.Abs(&amount)

	return core.AssetMovement{
		Location:      core.LocationGemini,
		Category:      category,
		Address:       strings.TrimSpace(raw.Destination),
		TransactionID: strings.TrimSpace(raw.TxHash),
		Timestamp:     time.Unix(ms/1000, 0).UTC(),
		Asset:         asset,
		Amount:        amount,
		FeeAsset:      asset,
		Fee:           *apd.New(0, 0),
		Link:          string(raw.EID),
	}, nil
}

// NormalizeMovements converts an oldest-first transfer history.
func (n *Normalizer) NormalizeMovements(records []RawRecord) []core.AssetMovement {
	movements := make([]core.AssetMovement, 0, len(records))
	for _, rec := range records {
		movement, err := n.NormalizeMovement(rec)
		if err != nil {
			n.skip(kindMovement, rec.Body, err)
			continue
		}
		movements = append(movements, movement)
	}
	return movements
}

// skip reports a dropped record: asset and pair problems as warnings, anything
// else as an error with the raw record logged.
func (n *Normalizer) skip(kind recordKind, body json.RawMessage, err error) {
	msgs := messages[kind]

	var priceErr *priceLookupError
	if errors.As(err, &priceErr) {
		n.metrics.ObserveSkip(string(kind), "PRICE")
		msg := fmt.Sprintf("Error processing gemini balance result due to inability to query USD price: %s. Skipping balance entry",
			errorText(priceErr.err))
		n.logger.Error().Err(err).Msg(msg)
		n.notifier.Notify(core.SeverityError, msg)
		return
	}

	errType := core.ErrorTypeOf(err)
	n.metrics.ObserveSkip(string(kind), errType.String())

	var msg string
	switch errType {
	case core.ErrorTypeUnknownAsset:
		msg = fmt.Sprintf(msgs.unknown, core.SubjectOf(err))
	case core.ErrorTypeUnsupportedAsset:
		msg = fmt.Sprintf(msgs.unsupported, core.SubjectOf(err))
	case core.ErrorTypeUnprocessableTradePair:
		if msgs.pair != "" {
			msg = fmt.Sprintf(msgs.pair, core.SubjectOf(err))
		}
	}

	if msg != "" {
		n.logger.Warn().Str("record", string(body)).Msg(msg)
		n.notifier.Notify(core.SeverityWarning, msg)
		return
	}

	n.logger.Error().
		Err(err).
		Str("kind", string(kind)).
		Str("record", string(body)).
		Msg(msgs.logMessage)
	n.notifier.Notify(core.SeverityError, msgs.malformed)
}

// decodeRecord decodes body into out and checks required fields.
func decodeRecord[T any](body json.RawMessage, out *T) error {
	if err := sonic.Unmarshal(body, out); err != nil {
		return core.NewDeserializationError(exchangeName, core.ErrCodeMalformedField,
			fmt.Sprintf("malformed record: %v", err)).
			WithCause(err)
	}

	if err := recordValidator.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return core.NewDeserializationError(exchangeName, core.ErrCodeMissingField,
				fmt.Sprintf("missing key entry for %s", verrs[0].Field())).
				WithSubject(verrs[0].Field()).
				WithCause(err)
		}
		return core.NewDeserializationError(exchangeName, core.ErrCodeMalformedField, err.Error()).WithCause(err)
	}
	return nil
}

func malformed(field string, err error) error {
	return core.NewDeserializationError(exchangeName, core.ErrCodeMalformedField,
		fmt.Sprintf("malformed %s: %v", field, err)).
		WithSubject(field).
		WithCause(err)
}

func parseSide(s string) (core.TradeSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return core.SideBuy, nil
	case "sell":
		return core.SideSell, nil
	default:
		return 0, malformed("type", fmt.Errorf("unknown trade type %q", s))
	}
}

func parseCategory(s string) (core.MovementCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return core.MovementDeposit, nil
	case "withdrawal":
		return core.MovementWithdrawal, nil
	default:
		return 0, malformed("type", fmt.Errorf("unknown movement type %q", s))
	}
}

type tradeTimestampProbe struct {
	Timestamp number `json:"timestamp"`
}

// tradeTimestamp reads only the seconds timestamp of a trade record.
func tradeTimestamp(body json.RawMessage) (time.Time, bool) {
	var probe tradeTimestampProbe
	if err := sonic.Unmarshal(body, &probe); err != nil || probe.Timestamp == "" {
		return time.Time{}, false
	}
	sec, err := probe.Timestamp.Int64()
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

// errorText returns the message of a classified error without its prefix.
func errorText(err error) string {
	var exErr *core.ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Message
	}
	return err.Error()
}
