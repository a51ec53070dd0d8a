package store

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalserver/internal/types"
)

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMemory_GetRegistryBeforeSetReturnsErrNoRegistry(t *testing.T) {
	m := NewMemory()
	_, err := m.GetRegistry()
	assert.ErrorIs(t, err, ErrNoRegistry)
}

func TestMemory_AssetInfoRoundTrip(t *testing.T) {
	m := NewMemory()
	asset := types.AssetInfo{ID: "btcusdt", Price: price("69000"), Timestamp: 100}

	require.NoError(t, m.InsertAssetInfo("binance", asset))

	got, ok, err := m.GetAssetInfo("binance", "btcusdt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Price.Equal(asset.Price))
	assert.Equal(t, asset.Timestamp, got.Timestamp)

	_, ok, err = m.GetAssetInfo("coingecko", "btcusdt")
	require.NoError(t, err)
	assert.False(t, ok, "prefixes must not leak into each other")
}

func TestMemory_BatchInsertAllOrNothingUnderConcurrentReads(t *testing.T) {
	m := NewMemory()
	batch := make([]types.AssetInfo, 50)
	for i := range batch {
		batch[i] = types.AssetInfo{ID: string(rune('a' + i%26)), Price: price("1"), Timestamp: int64(i)}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan int, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				count := 0
				for _, a := range batch {
					if _, ok, _ := m.GetAssetInfo("binance", a.ID); ok {
						count++
					}
				}
				if count != 0 && count != len(uniqueIDs(batch)) {
					select {
					case violations <- count:
					default:
					}
				}
			}
		}()
	}

	require.NoError(t, m.InsertBatchAssetInfo("binance", batch))
	close(stop)
	wg.Wait()

	select {
	case v := <-violations:
		t.Fatalf("observed a partial batch of %d entries", v)
	default:
	}
}

func uniqueIDs(assets []types.AssetInfo) map[string]struct{} {
	out := make(map[string]struct{})
	for _, a := range assets {
		out[a.ID] = struct{}{}
	}
	return out
}

func TestMemory_QueryIDsIsolatedCopy(t *testing.T) {
	m := NewMemory()
	ids := map[string]struct{}{"btcusdt": {}}
	require.NoError(t, m.SetQueryIDs("binance", ids))

	ids["ethusdt"] = struct{}{} // mutate caller's map after the call
	got, err := m.GetQueryIDs("binance")
	require.NoError(t, err)
	assert.Len(t, got, 1, "store must not alias the caller's map")

	got["xrpusdt"] = struct{}{} // mutate returned map
	got2, err := m.GetQueryIDs("binance")
	require.NoError(t, err)
	assert.Len(t, got2, 1, "store must not alias its internal map to callers")
}

func TestMemory_ContainsQueryID(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SetQueryIDs("binance", map[string]struct{}{"btcusdt": {}}))

	ok, err := m.ContainsQueryID("binance", "btcusdt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ContainsQueryID("binance", "ethusdt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ActiveSignalIDsRoundTrip(t *testing.T) {
	m := NewMemory()

	_, found, err := m.GetActiveSignalIDs()
	require.NoError(t, err)
	assert.False(t, found)

	ids := []string{"CS:BTC-USD"}
	require.NoError(t, m.SetActiveSignalIDs(ids))
	ids[0] = "mutated" // mutate caller's slice after the call

	got, found, err := m.GetActiveSignalIDs()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"CS:BTC-USD"}, got, "store must not alias the caller's slice")
}
