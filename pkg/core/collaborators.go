package core

import (
	"context"

	"github.com/cockroachdb/apd/v3"
)

// AssetResolver maps a venue currency symbol to a known asset.
// Resolve fails with an ErrorTypeUnknownAsset or ErrorTypeUnsupportedAsset error.
type AssetResolver interface {
	Resolve(symbol string) (Asset, error)
}

// PriceOracle returns the current USD price of an asset.
// Failures should be ErrorTypeRemote errors.
type PriceOracle interface {
	USDPrice(ctx context.Context, asset Asset) (apd.Decimal, error)
}

// Notifier receives user-facing warnings and errors about records that were
// skipped or queries that failed.
type Notifier interface {
	Notify(severity Severity, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(severity Severity, message string)

// Notify calls f(severity, message).
func (f NotifierFunc) Notify(severity Severity, message string) {
	f(severity, message)
}
