package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalserver/internal/metrics"
	"signalserver/internal/store"
	"signalserver/internal/types"
)

type fakeProvider struct {
	mu         sync.Mutex
	data       chan Data
	subErr     error
	subCalls   [][]string
	unsubCalls [][]string
	closeErr   error
	closed     bool
}

func (p *fakeProvider) Subscribe(ctx context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subCalls = append(p.subCalls, ids)
	return p.subErr
}

func (p *fakeProvider) Unsubscribe(ctx context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubCalls = append(p.unsubCalls, ids)
	return nil
}

func (p *fakeProvider) Next(ctx context.Context) (Data, error, bool) {
	select {
	case d, ok := <-p.data:
		if !ok {
			return Data{}, nil, false
		}
		return d, nil, true
	case <-ctx.Done():
		return Data{}, nil, false
	}
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

type fakeConnector struct {
	mu        sync.Mutex
	providers []*fakeProvider
	failFirst int
	calls     int
}

func (c *fakeConnector) Connect(ctx context.Context) (AssetInfoProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failFirst {
		return nil, errors.New("dial failed")
	}
	p := &fakeProvider{data: make(chan Data, 10)}
	c.providers = append(c.providers, p)
	return p, nil
}

func newTestWebsocketMetrics() *metrics.WebsocketMetrics {
	return metrics.NewWebsocketMetrics(prometheus.NewRegistry(), "test")
}

func TestWebsocketDriver_StoresAssetInfoFromProvider(t *testing.T) {
	connector := &fakeConnector{}
	s := store.NewMemory()
	ws := store.NewWorkerStore(s, "binance")
	require.NoError(t, ws.AddQueryIDs([]string{"btcusdt"}))

	d := NewWebsocketDriver("binance", connector, ws, 200*time.Millisecond, newTestWebsocketMetrics(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		connector.mu.Lock()
		defer connector.mu.Unlock()
		return len(connector.providers) == 1
	}, time.Second, 5*time.Millisecond)

	connector.mu.Lock()
	p := connector.providers[0]
	connector.mu.Unlock()
	p.data <- Data{Kind: DataAssetInfo, Assets: []types.AssetInfo{{ID: "btcusdt", Timestamp: 1}}}

	require.Eventually(t, func() bool {
		state, err := ws.GetAsset("btcusdt")
		return err == nil && state.Kind == types.AssetAvailable
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancel")
	}
}

func TestWebsocketDriver_ReconnectsOnDialFailure(t *testing.T) {
	connector := &fakeConnector{failFirst: 2}
	s := store.NewMemory()
	ws := store.NewWorkerStore(s, "binance")
	require.NoError(t, ws.AddQueryIDs([]string{"btcusdt"}))

	d := NewWebsocketDriver("binance", connector, ws, 100*time.Millisecond, newTestWebsocketMetrics(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		connector.mu.Lock()
		defer connector.mu.Unlock()
		return len(connector.providers) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.GreaterOrEqual(t, connector.calls, 3)
}

func TestWebsocketDriver_AddQueryIDsSubscribesOnLiveConnection(t *testing.T) {
	connector := &fakeConnector{}
	s := store.NewMemory()
	ws := store.NewWorkerStore(s, "binance")

	d := NewWebsocketDriver("binance", connector, ws, 200*time.Millisecond, newTestWebsocketMetrics(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		connector.mu.Lock()
		defer connector.mu.Unlock()
		return len(connector.providers) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.AddQueryIDs([]string{"ethusdt"}))

	connector.mu.Lock()
	p := connector.providers[0]
	connector.mu.Unlock()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, call := range p.subCalls {
			for _, id := range call {
				if id == "ethusdt" {
					return true
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "AddQueryIDs must subscribe on the live connection without reconnecting")

	p.mu.Lock()
	closedBeforeRemove := p.closed
	p.mu.Unlock()
	assert.False(t, closedBeforeRemove, "reconciling ids must not tear down the connection")

	require.NoError(t, d.RemoveQueryIDs([]string{"ethusdt"}))

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, call := range p.unsubCalls {
			for _, id := range call {
				if id == "ethusdt" {
					return true
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
