package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"signalserver/internal/metrics"
	"signalserver/internal/store"
	"signalserver/internal/types"
)

// WebsocketDriver owns one exchange's live subscription: it connects,
// subscribes to whatever query ids are currently active in Store, and
// forwards every AssetInfo batch it receives into Store, reconnecting with
// doubling backoff whenever the connection drops or goes idle past
// ConnectionTimeout.
//
// AddQueryIDs/RemoveQueryIDs let the manager reconcile the live subscription
// without tearing down the connection, mirroring the original's
// subscribe_rx/unsubscribe_rx channels
// (original_source/bothan-binance/src/worker/asset_worker.rs).
type WebsocketDriver struct {
	Source            string
	Connector         AssetInfoProviderConnector
	Store             *store.WorkerStore
	ConnectionTimeout time.Duration
	Metrics           *metrics.WebsocketMetrics
	Log               zerolog.Logger

	reconcile chan struct{}
}

func NewWebsocketDriver(source string, connector AssetInfoProviderConnector, s *store.WorkerStore, connectionTimeout time.Duration, m *metrics.WebsocketMetrics, log zerolog.Logger) *WebsocketDriver {
	return &WebsocketDriver{
		Source:            source,
		Connector:         connector,
		Store:             s,
		ConnectionTimeout: connectionTimeout,
		Metrics:           m,
		Log:               log,
		reconcile:         make(chan struct{}, 1),
	}
}

// GetAsset implements manager.AssetWorker by delegating to Store.
func (d *WebsocketDriver) GetAsset(queryID string) (types.AssetState, error) {
	return d.Store.GetAsset(queryID)
}

// ComputeQueryIDDifference implements manager.AssetWorker by delegating to Store.
func (d *WebsocketDriver) ComputeQueryIDDifference(ids map[string]struct{}) (store.Difference, error) {
	return d.Store.ComputeQueryIDDifference(ids)
}

// AddQueryIDs persists the added ids and wakes the run loop so it can
// subscribe to them on the live connection without reconnecting.
func (d *WebsocketDriver) AddQueryIDs(ids []string) error {
	if err := d.Store.AddQueryIDs(ids); err != nil {
		return err
	}
	d.notify()
	return nil
}

// RemoveQueryIDs persists the removed ids and wakes the run loop so it can
// unsubscribe them on the live connection without reconnecting.
func (d *WebsocketDriver) RemoveQueryIDs(ids []string) error {
	if err := d.Store.RemoveQueryIDs(ids); err != nil {
		return err
	}
	d.notify()
	return nil
}

func (d *WebsocketDriver) notify() {
	select {
	case d.reconcile <- struct{}{}:
	default:
	}
}

type wsResult struct {
	data Data
	err  error
	ok   bool
}

// Run blocks until ctx is cancelled.
func (d *WebsocketDriver) Run(ctx context.Context) {
	log := d.Log.With().Str("component", "websocket_worker").Str("source", d.Source).Logger()
	log.Info().Msg("starting asset worker")

	subscribed := make(map[string]struct{})
	provider := d.connect(ctx, log, subscribed)
	defer func() {
		if provider != nil {
			_ = provider.Close()
		}
	}()

	results := make(chan wsResult, 1)
	go d.readLoop(ctx, provider, results)

	for {
		if ctx.Err() != nil {
			log.Debug().Msg("asset worker stopping, context cancelled")
			return
		}

		select {
		case <-ctx.Done():
			return

		case <-d.reconcile:
			if err := d.reconcileSubscription(ctx, provider, subscribed, log); err != nil {
				log.Error().Err(err).Msg("failed to reconcile subscription, reconnecting")
				_ = provider.Close()
				provider = d.connect(ctx, log, subscribed)
				results = make(chan wsResult, 1)
				go d.readLoop(ctx, provider, results)
			}

		case res := <-results:
			if ctx.Err() != nil {
				return
			}
			if !res.ok {
				// Timed out or the connection dropped: assume it's gone and
				// reconnect from scratch, resubscribing to everything
				// currently active (matches handle_reconnect's
				// query_ids.get_query_ids().await).
				_ = provider.Close()
				provider = d.connect(ctx, log, subscribed)
				results = make(chan wsResult, 1)
				go d.readLoop(ctx, provider, results)
				continue
			}
			if res.err != nil {
				log.Error().Err(res.err).Msg("websocket read error")
				go d.readLoop(ctx, provider, results)
				continue
			}

			switch res.data.Kind {
			case DataAssetInfo:
				if err := d.Store.SetAssetInfos(res.data.Assets); err != nil {
					log.Error().Err(err).Msg("failed to store asset info")
				} else {
					log.Debug().Int("count", len(res.data.Assets)).Msg("asset info updated")
				}
				d.Metrics.IncrementMessages(metrics.MessageAssetInfo)
			case DataPing:
				d.Metrics.IncrementMessages(metrics.MessagePing)
			case DataUnused:
				d.Metrics.IncrementMessages(metrics.MessageUnused)
			}
			go d.readLoop(ctx, provider, results)
		}
	}
}

// readLoop issues a single bounded Next call and posts its outcome, so Run's
// select can interleave reconcile notifications with incoming messages
// without blocking on either.
func (d *WebsocketDriver) readLoop(ctx context.Context, provider AssetInfoProvider, results chan<- wsResult) {
	pollCtx, cancel := context.WithTimeout(ctx, d.ConnectionTimeout)
	defer cancel()
	data, err, ok := provider.Next(pollCtx)
	if ctx.Err() != nil {
		return
	}
	results <- wsResult{data: data, err: err, ok: ok}
}

// reconcileSubscription diffs the store's current query-id set against what
// the live connection is subscribed to and issues Subscribe/Unsubscribe for
// exactly the delta, per spec.md §4.3's no-teardown requirement.
func (d *WebsocketDriver) reconcileSubscription(ctx context.Context, provider AssetInfoProvider, subscribed map[string]struct{}, log zerolog.Logger) error {
	current, err := d.Store.GetQueryIDs()
	if err != nil {
		return err
	}

	var added, removed []string
	for id := range current {
		if _, ok := subscribed[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range subscribed {
		if _, ok := current[id]; !ok {
			removed = append(removed, id)
		}
	}

	if len(added) > 0 {
		if err := provider.Subscribe(ctx, added); err != nil {
			return err
		}
		for _, id := range added {
			subscribed[id] = struct{}{}
		}
		log.Debug().Strs("ids", added).Msg("subscribed")
	}
	if len(removed) > 0 {
		if err := provider.Unsubscribe(ctx, removed); err != nil {
			return err
		}
		for _, id := range removed {
			delete(subscribed, id)
		}
		log.Debug().Strs("ids", removed).Msg("unsubscribed")
	}
	return nil
}

// connect dials and subscribes to whatever ids are currently active in
// Store, retrying with exponential backoff from 1s up to a 64s ceiling until
// it succeeds or ctx is cancelled. subscribed is reset to exactly the set
// dialed in, so a reconnect always restores the desired subscription.
func (d *WebsocketDriver) connect(ctx context.Context, log zerolog.Logger, subscribed map[string]struct{}) AssetInfoProvider {
	backoff := minBackoff
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		ids, err := d.Store.GetQueryIDs()
		if err != nil {
			log.Error().Err(err).Msg("failed to read active query ids")
			ids = nil
		}
		idList := make([]string, 0, len(ids))
		for id := range ids {
			idList = append(idList, id)
		}

		start := time.Now()
		provider, dialErr := d.Connector.Connect(ctx)
		if dialErr == nil {
			if subErr := provider.Subscribe(ctx, idList); subErr == nil {
				d.Metrics.RecordConnectionDuration(time.Since(start).Seconds(), metrics.ConnectionSuccess)
				d.Metrics.IncrementConnections(metrics.ConnectionSuccess)
				for id := range subscribed {
					delete(subscribed, id)
				}
				for _, id := range idList {
					subscribed[id] = struct{}{}
				}
				return provider
			} else {
				_ = provider.Close()
				dialErr = subErr
			}
		}

		attempt++
		d.Metrics.RecordConnectionDuration(time.Since(start).Seconds(), metrics.ConnectionFailed)
		d.Metrics.IncrementConnections(metrics.ConnectionFailed)
		log.Error().Err(dialErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("failed to connect, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
