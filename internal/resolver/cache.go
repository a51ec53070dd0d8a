package resolver

import "signalserver/internal/types"

// priceCache memoizes the PriceState already computed for a signal id during
// one Resolve call. It is not safe for concurrent use — Resolve owns it
// exclusively for the duration of one resolution pass.
type priceCache struct {
	states map[string]types.PriceState
}

func newPriceCache() *priceCache {
	return &priceCache{states: make(map[string]types.PriceState)}
}

func (c *priceCache) has(signalID string) bool {
	_, ok := c.states[signalID]
	return ok
}

func (c *priceCache) set(signalID string, state types.PriceState) {
	c.states[signalID] = state
}

func (c *priceCache) get(signalID string) types.PriceState {
	if s, ok := c.states[signalID]; ok {
		return s
	}
	return types.PriceStateUnsupported()
}

// getAvailable returns the cached price for signalID and true only if it is
// cached and Available. A signal cached as Unavailable or Unsupported, or not
// cached at all, returns false.
func (c *priceCache) getAvailable(signalID string) (types.Price, bool) {
	s, ok := c.states[signalID]
	if !ok || s.Kind != types.PriceAvailable {
		return types.Price{}, false
	}
	return s.Price, true
}
