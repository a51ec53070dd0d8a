// Package processor implements the registry's aggregation strategies over
// per-source price observations: Median and WeightedMedian.
//
// Grounded on original_source/bothan-lib/src/registry/processor/{median,weighted_median}.rs.
package processor

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// SourceValue pairs a source id with the price it contributed, the input
// shape every Processor consumes.
type SourceValue struct {
	SourceID string
	Price    decimal.Decimal
}

// Processor combines per-source prices into a single aggregate value.
type Processor interface {
	Name() string
	Process(values []SourceValue) (decimal.Decimal, error)
}

var two = decimal.NewFromInt(2)

// Median returns the middle value (odd count) or the average of the two
// middle values (even count), failing if fewer than max(MinSourceCount, 1)
// values are supplied.
type Median struct {
	MinSourceCount uint32
}

func (m Median) Name() string { return "median" }

func (m Median) Process(values []SourceValue) (decimal.Decimal, error) {
	min := m.MinSourceCount
	if min < 1 {
		min = 1
	}
	if uint32(len(values)) < min {
		return decimal.Decimal{}, fmt.Errorf("median: not enough sources to calculate median: have %d, need %d", len(values), min)
	}

	prices := make([]decimal.Decimal, len(values))
	for i, v := range values {
		prices[i] = v.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Cmp(prices[j]) < 0 })

	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return prices[mid-1].Add(prices[mid]).Div(two), nil
	}
	return prices[mid], nil
}

// WeightedMedian returns the value at the weight-cumulative midpoint.
// Every source contributing a value must have an entry in SourceWeights;
// an unknown source fails processing (the original late-failure semantics —
// see the Open Question in spec.md §9, which Registry.Validate also enforces
// statically as a spec choice via invariant #3).
type WeightedMedian struct {
	SourceWeights           map[string]uint32
	MinimumCumulativeWeight uint32
}

func (w WeightedMedian) Name() string { return "weighted_median" }

type weightedValue struct {
	price  decimal.Decimal
	weight uint32
}

func (w WeightedMedian) Process(values []SourceValue) (decimal.Decimal, error) {
	var cumulative uint32
	weighted := make([]weightedValue, 0, len(values))
	for _, v := range values {
		weight, ok := w.SourceWeights[v.SourceID]
		if !ok {
			return decimal.Decimal{}, fmt.Errorf("weighted_median: unknown source %q", v.SourceID)
		}
		cumulative += weight
		weighted = append(weighted, weightedValue{price: v.Price, weight: weight})
	}

	if cumulative < w.MinimumCumulativeWeight {
		return decimal.Decimal{}, fmt.Errorf("weighted_median: not enough sources to calculate weighted median: cumulative weight %d below minimum %d", cumulative, w.MinimumCumulativeWeight)
	}
	if len(weighted) == 0 {
		return decimal.Decimal{}, fmt.Errorf("weighted_median: no sources to calculate weighted median")
	}

	sort.Slice(weighted, func(i, j int) bool { return weighted[i].price.Cmp(weighted[j].price) < 0 })

	var effectiveMid uint32
	for _, wv := range weighted {
		effectiveMid += wv.weight
	}

	var effectiveCumulative uint32
	for i, wv := range weighted {
		// Multiply by 2 to compare against the doubled midpoint and avoid
		// rounding when the true midpoint would fall on a half-integer.
		effectiveCumulative += wv.weight * 2
		switch {
		case effectiveCumulative > effectiveMid:
			return wv.price, nil
		case effectiveCumulative == effectiveMid:
			if i+1 < len(weighted) {
				return wv.price.Add(weighted[i+1].price).Div(two), nil
			}
			return wv.price, nil
		}
	}

	// Unreachable in practice: effectiveCumulative is the doubled running
	// weight sum, so by the last element it always reaches 2*effectiveMid
	// >= effectiveMid and one of the cases above fires.
	return weighted[len(weighted)-1].price, nil
}
