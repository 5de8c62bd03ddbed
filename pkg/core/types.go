package core

import (
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Location identifies the venue a record was acquired from.
type Location string

// LocationGemini is the only venue this module talks to.
const LocationGemini Location = "gemini"

// TradeSide represents the direction of a trade (buy or sell).
type TradeSide int

// Trade side constants define the direction of a trade.
const (
	// SideBuy indicates the base asset was bought.
	SideBuy TradeSide = iota
	// SideSell indicates the base asset was sold.
	SideSell
)

// String returns the string representation of the trade side ("BUY" or "SELL").
func (s TradeSide) String() string {
	return [...]string{"BUY", "SELL"}[s]
}

// MarshalJSON implements json.Marshaler for TradeSide.
func (s TradeSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for TradeSide.
// It accepts both uppercase and lowercase formats.
func (s *TradeSide) UnmarshalJSON(data []byte) error {
	str := string(data)
	switch str {
	case `"BUY"`, `"buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`:
		*s = SideSell
	}
	return nil
}

// MovementCategory distinguishes deposits from withdrawals.
type MovementCategory int

const (
	// MovementDeposit indicates funds credited to the account.
	MovementDeposit MovementCategory = iota
	// MovementWithdrawal indicates funds sent out of the account.
	MovementWithdrawal
)

// String returns the string representation of the movement category.
func (c MovementCategory) String() string {
	return [...]string{"DEPOSIT", "WITHDRAWAL"}[c]
}

// MarshalJSON implements json.Marshaler for MovementCategory.
func (c MovementCategory) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Severity is the level attached to a user-facing notification.
type Severity int

const (
	// SeverityWarning flags a record that was ignored for an expected reason.
	SeverityWarning Severity = iota
	// SeverityError flags a record or query that failed unexpectedly.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return [...]string{"warning", "error"}[s]
}

// Asset is a resolved asset identifier.
type Asset struct {
	// Identifier is the canonical identifier (e.g., "BTC").
	Identifier string `json:"identifier"`
	// Name is a human readable name, may be empty.
	Name string `json:"name,omitempty"`
}

// String returns the asset identifier.
func (a Asset) String() string {
	return a.Identifier
}

// TradePair is a resolved base/quote pair.
type TradePair struct {
	Base  Asset `json:"base"`
	Quote Asset `json:"quote"`
}

// String renders the pair as "BASE_QUOTE".
func (p TradePair) String() string {
	return p.Base.Identifier + "_" + p.Quote.Identifier
}

// Balance represents the holding of a single asset and its USD value.
type Balance struct {
	// Asset is the held asset.
	Asset Asset `json:"asset"`
	// Amount is the total amount held. Never zero.
	Amount apd.Decimal `json:"amount"`
	// USDValue is Amount multiplied by the asset's USD price.
	USDValue apd.Decimal `json:"usd_value"`
}

// Trade represents a single executed trade from the account history.
type Trade struct {
	// Timestamp is when the trade was executed, at second resolution.
	Timestamp time.Time `json:"timestamp"`
	// Location is the venue the trade happened on.
	Location Location `json:"location"`
	// Pair is the traded pair.
	Pair TradePair `json:"pair"`
	// Side indicates whether the base asset was bought or sold.
	Side TradeSide `json:"side"`
	// Amount is the traded amount of the base asset.
	Amount apd.Decimal `json:"amount"`
	// Rate is the execution price in quote asset.
	Rate apd.Decimal `json:"rate"`
	// Fee is the fee charged.
	Fee apd.Decimal `json:"fee"`
	// FeeAsset is the asset the fee was charged in.
	FeeAsset Asset `json:"fee_asset"`
	// Link is the venue-assigned unique trade id.
	Link string `json:"link"`
	// Notes is free text, empty for venue-imported trades.
	Notes string `json:"notes"`
}

// AssetMovement represents a deposit or withdrawal.
type AssetMovement struct {
	// Location is the venue the movement happened on.
	Location Location `json:"location"`
	// Category tells deposits and withdrawals apart.
	Category MovementCategory `json:"category"`
	// Address is the destination address, empty when the venue did not report one.
	Address string `json:"address,omitempty"`
	// TransactionID is the on-chain transaction hash, empty when unknown.
	TransactionID string `json:"transaction_id,omitempty"`
	// Timestamp is when the movement happened, at second resolution.
	Timestamp time.Time `json:"timestamp"`
	// Asset is the moved asset.
	Asset Asset `json:"asset"`
	// Amount is the moved amount. Never negative.
	Amount apd.Decimal `json:"amount"`
	// FeeAsset is the asset the fee is denominated in.
	FeeAsset Asset `json:"fee_asset"`
	// Fee is the movement fee.
	Fee apd.Decimal `json:"fee"`
	// Link is the venue-assigned unique movement id.
	Link string `json:"link"`
}

// NormalizeSymbol upper-cases and trims an asset symbol before resolution.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
