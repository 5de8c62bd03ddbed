package core

// Operation represents a public operation of the exchange client.
// It labels logs and metrics.
type Operation int

// Operation constants define all supported client operations.
const (
	// OpFirstConnection fetches the venue's trading pair symbols.
	OpFirstConnection Operation = iota
	// OpValidateAPIKey checks the API key's permissions.
	OpValidateAPIKey
	// OpQueryBalances retrieves the account balance snapshot.
	OpQueryBalances
	// OpQueryTradeHistory retrieves the account trades within a window.
	OpQueryTradeHistory
	// OpQueryDepositsWithdrawals retrieves deposits and withdrawals within a window.
	OpQueryDepositsWithdrawals
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"FIRST_CONNECTION",
		"VALIDATE_API_KEY",
		"QUERY_BALANCES",
		"QUERY_TRADE_HISTORY",
		"QUERY_DEPOSITS_WITHDRAWALS",
	}[o]
}
