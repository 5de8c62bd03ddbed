// Package gemini implements a data-acquisition client for the Gemini REST API.
// It authenticates privileged requests, retries under rate limiting, paginates
// the history endpoints and normalizes venue records into core types.
//
// The package includes:
//   - Signer: HMAC-SHA384 authentication headers
//   - Transport: request execution with 429 backoff and client-side pacing
//   - Paginator: cursor walking over newest-first history pages
//   - Normalizer: conversion of raw records to balances, trades and movements
//   - Exchange: the facade tying them together
//
// Example usage:
//
//	config := core.DefaultConfig().WithCredentials(&core.Credentials{APIKey: key, SecretKey: secret})
//	ex, err := gemini.New(config, gemini.WithPriceOracle(prices))
//	trades, err := ex.QueryTradeHistory(ctx, start, end)
package gemini
