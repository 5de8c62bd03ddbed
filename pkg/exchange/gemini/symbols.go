package gemini

import (
	"strings"

	"gemsync/pkg/core"
)

// DecomposeSymbol splits a venue trading pair symbol such as "btcusd" into its
// base and quote assets. Gemini symbols carry no separator, so the split point
// is chosen by length:
//
//	6 characters: 3/3
//	7 characters: 4/3, or 3/4 when the 4 character prefix is not a known asset
//	8 characters: 5/3 when the symbol contains "storj", otherwise 4/4
//
// Any other length fails with an unprocessable trade pair error. Halves that do
// not resolve fail with the resolver's unknown or unsupported asset error.
func DecomposeSymbol(symbol string, resolver core.AssetResolver) (core.TradePair, error) {
	switch len(symbol) {
	case 6:
		return resolvePair(resolver, symbol[:3], symbol[3:])
	case 7:
		base, err := resolveAsset(resolver, symbol[:4])
		if err != nil {
			if core.IsUnknownAssetError(err) {
				return resolvePair(resolver, symbol[:3], symbol[3:])
			}
			return core.TradePair{}, err
		}
		quote, err := resolveAsset(resolver, symbol[4:])
		if err != nil {
			return core.TradePair{}, err
		}
		return core.TradePair{Base: base, Quote: quote}, nil
	case 8:
		if strings.Contains(strings.ToLower(symbol), "storj") {
			return resolvePair(resolver, symbol[:5], symbol[5:])
		}
		return resolvePair(resolver, symbol[:4], symbol[4:])
	default:
		return core.TradePair{}, core.NewUnprocessableTradePairError(exchangeName, symbol)
	}
}

func resolvePair(resolver core.AssetResolver, base, quote string) (core.TradePair, error) {
	b, err := resolveAsset(resolver, base)
	if err != nil {
		return core.TradePair{}, err
	}
	q, err := resolveAsset(resolver, quote)
	if err != nil {
		return core.TradePair{}, err
	}
	return core.TradePair{Base: b, Quote: q}, nil
}

func resolveAsset(resolver core.AssetResolver, symbol string) (core.Asset, error) {
	return resolver.Resolve(core.NormalizeSymbol(symbol))
}
