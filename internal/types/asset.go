// Package types defines the data shared across the store, workers, and the
// resolver: prices, per-source observations, and their lifecycle states.
package types

import (
	"github.com/shopspring/decimal"
)

// Price is a fixed-precision decimal value. All comparison and arithmetic on
// prices must be exact; binary floats are never used to represent a price.
type Price = decimal.Decimal

// ParsePrice parses a decimal string into a Price, failing on anything that
// isn't an exact decimal representation (never silently drops through a
// binary float).
func ParsePrice(s string) (Price, error) {
	return decimal.NewFromString(s)
}

// AssetInfo is one observation of an asset's price from a single source.
// Timestamp is unix seconds; exchange messages quoting milliseconds must be
// truncated to seconds at ingestion, never stored as-is.
type AssetInfo struct {
	ID        string
	Price     Price
	Timestamp int64
}

// AssetStateKind tags the variant held by an AssetState.
type AssetStateKind int

const (
	// AssetUnsupported means the asset id is not in the worker's active
	// query set.
	AssetUnsupported AssetStateKind = iota
	// AssetPending means the id is subscribed but no data has arrived yet.
	AssetPending
	// AssetAvailable means a value is present.
	AssetAvailable
)

// AssetState is the tagged result of WorkerStore.GetAsset.
type AssetState struct {
	Kind  AssetStateKind
	Asset AssetInfo // valid only when Kind == AssetAvailable
}

// Unsupported, Pending, and Available construct the three AssetState variants.
func Unsupported() AssetState { return AssetState{Kind: AssetUnsupported} }
func Pending() AssetState     { return AssetState{Kind: AssetPending} }
func Available(a AssetInfo) AssetState {
	return AssetState{Kind: AssetAvailable, Asset: a}
}

// PriceStateKind tags the variant held by a PriceState.
type PriceStateKind int

const (
	PriceUnavailable PriceStateKind = iota
	PriceUnsupported
	PriceAvailable
)

// PriceState is the terminal per-signal output of the resolver.
type PriceState struct {
	Kind  PriceStateKind
	Price Price // valid only when Kind == PriceAvailable
}

func PriceStateAvailable(p Price) PriceState {
	return PriceState{Kind: PriceAvailable, Price: p}
}
func PriceStateUnavailable() PriceState { return PriceState{Kind: PriceUnavailable} }
func PriceStateUnsupported() PriceState { return PriceState{Kind: PriceUnsupported} }
