// Package postprocessor implements the unary transformations applied, in
// declared order, to a processor's aggregate output.
//
// Grounded on original_source/bothan-lib/src/registry/post_processor.rs (the
// TickConvertor contract: deterministic, total on positive inputs, fails on
// non-positive — the exact tick function is left to the implementer by
// spec.md §3).
package postprocessor

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PostProcessor transforms a processor's scalar output.
type PostProcessor interface {
	Name() string
	PostProcess(value decimal.Decimal) (decimal.Decimal, error)
}

// tickBase is the per-tick price ratio, matching the Uniswap-style tick
// convention (each tick is a 0.01% price step) used across the pack's AMM
// and price-index repos for log-price bucketing.
const tickBase = 1.0001

// TickConvertor maps a positive price to a signed log-based tick index:
// tick = round(log_tickBase(price)). It is deterministic and total on
// positive inputs, and fails on non-positive ones, per spec.md §3.
//
// Logarithms have no exact decimal representation, so the computation
// necessarily drops to float64 for the log itself; the result is rounded to
// the nearest integer tick before being restored to an exact decimal, so the
// output remains an exact integer value regardless of the float64
// intermediate.
type TickConvertor struct{}

func (TickConvertor) Name() string { return "tick_convertor" }

func (TickConvertor) PostProcess(value decimal.Decimal) (decimal.Decimal, error) {
	if value.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("tick_convertor: price must be positive, got %s", value.String())
	}

	price, _ := value.Float64()
	tick := math.Round(math.Log(price) / math.Log(tickBase))
	return decimal.NewFromInt(int64(tick)), nil
}
