package registry

import (
	"errors"

	"github.com/shopspring/decimal"
)

// RouteOp is an arithmetic folding operation applied when a SourceQuery's
// value is routed through another signal's resolved price.
type RouteOp int

const (
	Multiply RouteOp = iota
	Divide
	Add
	Subtract
)

// ErrDivideByZero is returned when a Divide route would divide by zero.
var ErrDivideByZero = errors.New("registry: divide by zero in route fold")

// Execute folds value into acc using the operation this route defines.
func (op RouteOp) Execute(acc, value decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case Multiply:
		return acc.Mul(value), nil
	case Divide:
		if value.IsZero() {
			return decimal.Decimal{}, ErrDivideByZero
		}
		return acc.Div(value), nil
	case Add:
		return acc.Add(value), nil
	case Subtract:
		return acc.Sub(value), nil
	default:
		return decimal.Decimal{}, errors.New("registry: unknown route operation")
	}
}

// Route defines a dependency edge from a SourceQuery onto another signal:
// fold the running value through op using that signal's resolved price.
type Route struct {
	SignalID string
	Op       RouteOp
}

// SourceQuery asks a source for one of its raw asset ids, then folds the
// resulting price through an ordered list of routes.
type SourceQuery struct {
	SourceID string
	QueryID  string
	Routes   []Route
}
