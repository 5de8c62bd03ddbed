// Package asset provides in-memory asset resolution and USD prices backed by a
// static table, for the CLI and for tests.
package asset

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/apd/v3"
	"gopkg.in/yaml.v3"

	"gemsync/pkg/core"
)

// Registry resolves venue currency symbols against a fixed set of assets.
type Registry struct {
	mu          sync.RWMutex
	known       map[string]core.Asset
	unsupported map[string]bool
}

// NewRegistry creates a registry knowing the given symbols.
func NewRegistry(symbols ...string) *Registry {
	r := &Registry{
		known:       make(map[string]core.Asset),
		unsupported: make(map[string]bool),
	}
	for _, s := range symbols {
		r.Add(core.Asset{Identifier: core.NormalizeSymbol(s)})
	}
	return r
}

var defaultSymbols = []string{
	"AMP", "BAT", "BCH", "BTC", "COMP", "CRV", "DAI", "DOGE", "ETH", "EUR",
	"FIL", "GBP", "GUSD", "LINK", "LTC", "MANA", "OXT", "PAXG", "SGD", "SNX",
	"STORJ", "SUSHI", "UNI", "USD", "USDC", "USDT", "YFI", "ZEC", "ZRX",
}

// DefaultRegistry knows the currencies commonly listed on Gemini.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultSymbols...)
}

// Add registers an asset under its identifier.
func (r *Registry) Add(asset core.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[asset.Identifier] = asset
}

// MarkUnsupported flags a known symbol as unsupported.
func (r *Registry) MarkUnsupported(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsupported[core.NormalizeSymbol(symbol)] = true
}

// Resolve implements core.AssetResolver.
func (r *Registry) Resolve(symbol string) (core.Asset, error) {
	key := core.NormalizeSymbol(symbol)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.unsupported[key] {
		return core.Asset{}, core.NewUnsupportedAssetError(key)
	}
	asset, ok := r.known[key]
	if !ok {
		return core.Asset{}, core.NewUnknownAssetError(key)
	}
	return asset, nil
}

// Prices is a static USD price table.
type Prices struct {
	mu     sync.RWMutex
	prices map[string]apd.Decimal
}

// NewPrices creates a price table where USD is worth one dollar.
func NewPrices() *Prices {
	p := &Prices{prices: make(map[string]apd.Decimal)}
	p.prices["USD"] = *apd.New(1, 0)
	return p
}

// Set stores the USD price of symbol, given as a decimal string.
func (p *Prices) Set(symbol, price string) error {
	d, _, err := apd.NewFromString(price)
	if err != nil {
		return fmt.Errorf("parse price for %s: %w", symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[core.NormalizeSymbol(symbol)] = *d
	return nil
}

// USDPrice implements core.PriceOracle. A missing price is a remote error, the
// same way a failing price service would report it.
func (p *Prices) USDPrice(_ context.Context, asset core.Asset) (apd.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[asset.Identifier]
	if !ok {
		return apd.Decimal{}, core.NewRemoteError("", 0, fmt.Sprintf("no USD price for %s", asset.Identifier))
	}
	return price, nil
}

// Table is the YAML layout of an asset and price file:
//
//	assets: [BTC, ETH, USD]
//	unsupported: [XYZ]
//	prices:
//	  BTC: "50000"
type Table struct {
	Assets      []string          `yaml:"assets"`
	Unsupported []string          `yaml:"unsupported"`
	Prices      map[string]string `yaml:"prices"`
}

// LoadTable reads a Table from path. Listed assets extend the default registry.
func LoadTable(path string) (*Registry, *Prices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read asset table: %w", err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, nil, fmt.Errorf("parse asset table: %w", err)
	}
	return table.Build()
}

// Build turns the table into a registry and a price table.
func (t Table) Build() (*Registry, *Prices, error) {
	registry := DefaultRegistry()
	for _, s := range t.Assets {
		registry.Add(core.Asset{Identifier: core.NormalizeSymbol(s)})
	}
	for _, s := range t.Unsupported {
		registry.Add(core.Asset{Identifier: core.NormalizeSymbol(s)})
		registry.MarkUnsupported(s)
	}

	prices := NewPrices()
	for symbol, price := range t.Prices {
		if err := prices.Set(symbol, price); err != nil {
			return nil, nil, err
		}
	}
	return registry, prices, nil
}
