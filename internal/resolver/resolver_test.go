package resolver

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalserver/internal/registry"
	"signalserver/internal/registry/processor"
	"signalserver/internal/types"
)

// fakeWorker is an in-memory Worker fixture: queryID -> AssetState.
type fakeWorker struct {
	assets map[string]types.AssetState
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{assets: make(map[string]types.AssetState)}
}

func (w *fakeWorker) set(queryID string, price float64, timestamp int64) {
	w.assets[queryID] = types.Available(types.AssetInfo{
		ID:        queryID,
		Price:     decimal.NewFromFloat(price),
		Timestamp: timestamp,
	})
}

func (w *fakeWorker) GetAsset(queryID string) (types.AssetState, error) {
	if s, ok := w.assets[queryID]; ok {
		return s, nil
	}
	return types.Unsupported(), nil
}

func price(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestResolve_S1_DirectMedianTwoSources(t *testing.T) {
	binance, coingecko := newFakeWorker(), newFakeWorker()
	binance.set("btcusdt", 69000, 100)
	coingecko.set("bitcoin", 70000, 100)

	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{
				{SourceID: "binance", QueryID: "btcusdt"},
				{SourceID: "coingecko", QueryID: "bitcoin"},
			},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)

	workers := map[string]Worker{"binance": binance, "coingecko": coingecko}
	out := Resolve([]string{"CS:BTC-USD"}, workers, reg, 0, nil)

	require.Len(t, out, 1)
	assert.Equal(t, types.PriceAvailable, out[0].Kind)
	assert.True(t, out[0].Price.Equal(price("69500")), "got %s", out[0].Price)
}

func TestResolve_S2_RouteThroughUSDT(t *testing.T) {
	binance, coingecko := newFakeWorker(), newFakeWorker()
	binance.set("btcusdt", 69000, 100)
	coingecko.set("tether", 1.0, 100)
	coingecko.set("bitcoin", 70000, 100)

	reg, err := registry.New().
		Add("CS:USDT-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "coingecko", QueryID: "tether"}},
			Processor:     processor.Median{MinSourceCount: 1},
		}).
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{
				{
					SourceID: "binance",
					QueryID:  "btcusdt",
					Routes:   []registry.Route{{SignalID: "CS:USDT-USD", Op: registry.Multiply}},
				},
				{SourceID: "coingecko", QueryID: "bitcoin"},
			},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)

	workers := map[string]Worker{"binance": binance, "coingecko": coingecko}
	out := Resolve([]string{"CS:BTC-USD", "CS:USDT-USD"}, workers, reg, 0, nil)

	require.Len(t, out, 2)
	assert.Equal(t, types.PriceAvailable, out[0].Kind)
	assert.True(t, out[0].Price.Equal(price("69500")), "got %s", out[0].Price)
	assert.Equal(t, types.PriceAvailable, out[1].Kind)
	assert.True(t, out[1].Price.Equal(price("1")), "got %s", out[1].Price)
}

func TestResolve_S3_StaleSourceExcluded(t *testing.T) {
	binance, coingecko := newFakeWorker(), newFakeWorker()
	binance.set("btcusdt", 69000, 5)
	coingecko.set("bitcoin", 70000, 100)

	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{
				{SourceID: "binance", QueryID: "btcusdt"},
				{SourceID: "coingecko", QueryID: "bitcoin"},
			},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)

	workers := map[string]Worker{"binance": binance, "coingecko": coingecko}
	out := Resolve([]string{"CS:BTC-USD"}, workers, reg, 10, nil)

	require.Len(t, out, 1)
	assert.Equal(t, types.PriceAvailable, out[0].Kind)
	assert.True(t, out[0].Price.Equal(price("70000")), "got %s", out[0].Price)
}

func TestResolve_S4_AllSourcesStale(t *testing.T) {
	binance, coingecko := newFakeWorker(), newFakeWorker()
	binance.set("btcusdt", 69000, 5)
	coingecko.set("bitcoin", 70000, 5)

	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{
				{SourceID: "binance", QueryID: "btcusdt"},
				{SourceID: "coingecko", QueryID: "bitcoin"},
			},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)

	workers := map[string]Worker{"binance": binance, "coingecko": coingecko}
	out := Resolve([]string{"CS:BTC-USD"}, workers, reg, 10, nil)

	require.Len(t, out, 1)
	assert.Equal(t, types.PriceUnavailable, out[0].Kind)
}

func TestResolve_S5_UnknownSignal(t *testing.T) {
	reg, err := registry.New().Validate()
	require.NoError(t, err)

	out := Resolve([]string{"CS:DNE-USD"}, nil, reg, 0, nil)

	require.Len(t, out, 1)
	assert.Equal(t, types.PriceUnsupported, out[0].Kind)
}

func TestResolve_S6_CycleRejectedAtValidate(t *testing.T) {
	_, err := registry.New().
		Add("A", registry.Signal{
			SourceQueries: []registry.SourceQuery{{
				SourceID: "x", QueryID: "x",
				Routes: []registry.Route{{SignalID: "B", Op: registry.Multiply}},
			}},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Add("B", registry.Signal{
			SourceQueries: []registry.SourceQuery{{
				SourceID: "x", QueryID: "x",
				Routes: []registry.Route{{SignalID: "A", Op: registry.Multiply}},
			}},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Validate()

	require.Error(t, err)
	var verr *registry.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, registry.ErrCycleDetected, verr.Kind)
}

func TestResolve_EmptyRequestedIDs(t *testing.T) {
	reg, err := registry.New().Validate()
	require.NoError(t, err)

	out := Resolve(nil, nil, reg, 0, nil)
	assert.Empty(t, out)
}

func TestResolve_SignalWithNoSourceQueries(t *testing.T) {
	reg, err := registry.New().
		Add("CS:EMPTY-USD", registry.Signal{Processor: processor.Median{MinSourceCount: 1}}).
		Validate()
	require.NoError(t, err)

	out := Resolve([]string{"CS:EMPTY-USD"}, map[string]Worker{}, reg, 0, nil)

	require.Len(t, out, 1)
	assert.Equal(t, types.PriceUnavailable, out[0].Kind)
}

func TestResolve_RecordsAreAppendedButDoNotAffectOutcome(t *testing.T) {
	binance := newFakeWorker()
	binance.set("btcusdt", 69000, 100)

	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "binance", QueryID: "btcusdt"}},
			Processor:     processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)

	var records []Record
	out := Resolve([]string{"CS:BTC-USD"}, map[string]Worker{"binance": binance}, reg, 0, &records)

	require.Len(t, out, 1)
	assert.Equal(t, types.PriceAvailable, out[0].Kind)
	require.Len(t, records, 1)
	assert.Equal(t, "CS:BTC-USD", records[0].SignalID)
	require.Len(t, records[0].Sources, 1)
	assert.Equal(t, "binance", records[0].Sources[0].SourceID)
}
