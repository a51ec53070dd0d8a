package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalserver/internal/registry"
	"signalserver/internal/registry/processor"
	"signalserver/internal/store"
	"signalserver/internal/types"
)

func mustVersionRange(t *testing.T, min string) VersionRange {
	t.Helper()
	r, err := NewMinVersionRange(min)
	require.NoError(t, err)
	return r
}

func TestManager_SetActiveSignalIDsPropagatesReachableQueryIDs(t *testing.T) {
	s := store.NewMemory()
	reg, err := registry.New().
		Add("CS:USDT-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "coingecko", QueryID: "tether"}},
			Processor:     processor.Median{MinSourceCount: 1},
		}).
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{
				{
					SourceID: "binance", QueryID: "btcusdt",
					Routes: []registry.Route{{SignalID: "CS:USDT-USD", Op: registry.Multiply}},
				},
			},
			Processor: processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(reg, "hash"))

	m := New(s, nil, 60, mustVersionRange(t, "0.0.0"))
	binance := store.NewWorkerStore(s, "binance")
	coingecko := store.NewWorkerStore(s, "coingecko")
	m.AddWorker("binance", binance)
	m.AddWorker("coingecko", coingecko)

	require.NoError(t, m.SetActiveSignalIDs([]string{"CS:BTC-USD"}))

	ok, err := binance.GetQueryIDs()
	require.NoError(t, err)
	assert.Contains(t, ok, "btcusdt")

	ok, err = coingecko.GetQueryIDs()
	require.NoError(t, err)
	assert.Contains(t, ok, "tether", "CS:USDT-USD is reachable via a route from CS:BTC-USD")
}

func TestManager_SetActiveSignalIDsPersistsSelection(t *testing.T) {
	s := store.NewMemory()
	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "binance", QueryID: "btcusdt"}},
			Processor:     processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(reg, "hash"))

	m := New(s, nil, 60, mustVersionRange(t, "0.0.0"))
	m.AddWorker("binance", store.NewWorkerStore(s, "binance"))

	_, found, err := s.GetActiveSignalIDs()
	require.NoError(t, err)
	assert.False(t, found, "nothing persisted before the first call")

	require.NoError(t, m.SetActiveSignalIDs([]string{"CS:BTC-USD"}))

	ids, found, err := s.GetActiveSignalIDs()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"CS:BTC-USD"}, ids)
}

func TestManager_InstallingSameRegistryTwiceIsNoopForQueryIDs(t *testing.T) {
	s := store.NewMemory()
	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "binance", QueryID: "btcusdt"}},
			Processor:     processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(reg, "hash"))

	m := New(s, nil, 60, mustVersionRange(t, "0.0.0"))
	binance := store.NewWorkerStore(s, "binance")
	m.AddWorker("binance", binance)

	require.NoError(t, m.SetActiveSignalIDs([]string{"CS:BTC-USD"}))
	first, err := binance.GetQueryIDs()
	require.NoError(t, err)

	require.NoError(t, m.SetActiveSignalIDs([]string{"CS:BTC-USD"}))
	second, err := binance.GetQueryIDs()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestManager_GetPricesAppliesStaleCutoff(t *testing.T) {
	s := store.NewMemory()
	reg, err := registry.New().
		Add("CS:BTC-USD", registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "binance", QueryID: "btcusdt"}},
			Processor:     processor.Median{MinSourceCount: 1},
		}).
		Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(reg, "hash"))

	m := New(s, nil, 60, mustVersionRange(t, "0.0.0"))
	binance := store.NewWorkerStore(s, "binance")
	m.AddWorker("binance", binance)
	require.NoError(t, binance.AddQueryIDs([]string{"btcusdt"}))
	require.NoError(t, binance.SetAssetInfo(types.AssetInfo{ID: "btcusdt", Timestamp: 1}))

	out, err := m.GetPrices([]string{"CS:BTC-USD"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.PriceUnavailable, out[0].Kind, "timestamp 1 must be far below the stale cutoff")
}

type fakeIPFSClient struct {
	content string
	err     error
	called  bool
}

func (c *fakeIPFSClient) Get(ctx context.Context, hash string) (string, error) {
	c.called = true
	return c.content, c.err
}

func TestManager_SetRegistryFromIPFS_VersionGateBeforeFetch(t *testing.T) {
	s := store.NewMemory()
	prev, err := registry.New().Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(prev, "prev-hash"))

	client := &fakeIPFSClient{err: errors.New("should not be called")}

	m := New(s, client, 60, mustVersionRange(t, "1.0.0"))
	err = m.SetRegistryFromIPFS(context.Background(), "new-hash", "0.9.0")

	require.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.False(t, client.called, "ipfs fetch must not happen when the version gate fails")

	hash, _, err := s.GetRegistryIPFSHash()
	require.NoError(t, err)
	assert.Equal(t, "prev-hash", hash, "previous registry must remain installed")
}

func TestManager_SetRegistryFromIPFS_InvalidRegistryKeepsPrevious(t *testing.T) {
	s := store.NewMemory()
	prev, err := registry.New().Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(prev, "prev-hash"))

	client := &fakeIPFSClient{content: `{"A":{"source_queries":[{"SourceID":"x","QueryID":"x","Routes":[{"SignalID":"B","Op":0}]}],"processor":{"type":"median","min_source_count":1}}}`}
	m := New(s, client, 60, mustVersionRange(t, "0.0.0"))

	err = m.SetRegistryFromIPFS(context.Background(), "new-hash", "1.0.0")
	require.ErrorIs(t, err, ErrInvalidRegistry)

	hash, _, err := s.GetRegistryIPFSHash()
	require.NoError(t, err)
	assert.Equal(t, "prev-hash", hash)
}

func TestManager_SetRegistryFromIPFS_Success(t *testing.T) {
	s := store.NewMemory()
	client := &fakeIPFSClient{content: `{"CS:BTC-USD":{"source_queries":[{"SourceID":"binance","QueryID":"btcusdt","Routes":null}],"processor":{"type":"median","min_source_count":1}}}`}
	m := New(s, client, 60, mustVersionRange(t, "0.0.0"))

	require.NoError(t, m.SetRegistryFromIPFS(context.Background(), "new-hash", "1.0.0"))

	hash, found, err := s.GetRegistryIPFSHash()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new-hash", hash)
}

func TestManager_InfoAccessors(t *testing.T) {
	s := store.NewMemory()
	reg, err := registry.New().Validate()
	require.NoError(t, err)
	require.NoError(t, s.SetRegistry(reg, "info-hash"))

	m := New(s, nil, 60, mustVersionRange(t, "1.2.0"))
	m.AddWorker("binance", store.NewWorkerStore(s, "binance"))
	m.AddWorker("coingecko", store.NewWorkerStore(s, "coingecko"))

	assert.ElementsMatch(t, []string{"binance", "coingecko"}, m.ActiveSources())
	assert.Equal(t, ">=1.2.0", m.VersionRequirement())

	hash, found, err := m.RegistryIPFSHash()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "info-hash", hash)
}
