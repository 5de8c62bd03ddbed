package exchange

import (
	"context"
	"time"

	"gemsync/pkg/core"
)

// Exchange is the data-acquisition surface of an exchange client: connection
// bootstrap, key validation, balances and the trade and transfer histories.
type Exchange interface {
	Name() string

	FirstConnection(ctx context.Context) error
	ValidateAPIKey(ctx context.Context) (bool, string)

	// QueryBalances is best effort: on failure it returns nil and a message.
	QueryBalances(ctx context.Context) ([]core.Balance, string)
	QueryTradeHistory(ctx context.Context, start, end time.Time) ([]core.Trade, error)
	QueryDepositsWithdrawals(ctx context.Context, start, end time.Time) ([]core.AssetMovement, error)

	Close() error
}
