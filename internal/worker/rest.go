package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"signalserver/internal/metrics"
	"signalserver/internal/store"
	"signalserver/internal/types"
)

// RestDriver polls one exchange's REST endpoint for a batch of ids at a
// fixed interval, storing whatever it gets back each round. A round that
// exceeds Interval is abandoned and logged, not retried mid-cycle.
//
// Unlike WebsocketDriver there is no persistent connection to subscribe or
// unsubscribe on, so RestDriver reconciles by re-reading Store's active
// query-id set fresh on every wake (ticker or reconcile notification) rather
// than tracking a local subscribed set — the REST worker in
// original_source/bothan-lib/src/worker/rest.rs has no equivalent reconcile
// channel at all, so this is the closest Go analogue that still reacts to id
// changes without tearing anything down.
type RestDriver struct {
	Source   string
	Provider RestAssetInfoProvider
	Store    *store.WorkerStore
	Interval time.Duration
	Metrics  *metrics.RestMetrics
	Log      zerolog.Logger

	reconcile chan struct{}
}

func NewRestDriver(source string, provider RestAssetInfoProvider, s *store.WorkerStore, interval time.Duration, m *metrics.RestMetrics, log zerolog.Logger) *RestDriver {
	return &RestDriver{
		Source:    source,
		Provider:  provider,
		Store:     s,
		Interval:  interval,
		Metrics:   m,
		Log:       log,
		reconcile: make(chan struct{}, 1),
	}
}

// GetAsset implements manager.AssetWorker by delegating to Store.
func (d *RestDriver) GetAsset(queryID string) (types.AssetState, error) {
	return d.Store.GetAsset(queryID)
}

// ComputeQueryIDDifference implements manager.AssetWorker by delegating to Store.
func (d *RestDriver) ComputeQueryIDDifference(ids map[string]struct{}) (store.Difference, error) {
	return d.Store.ComputeQueryIDDifference(ids)
}

// AddQueryIDs persists the added ids and wakes the poll loop so the next
// round picks them up immediately instead of waiting out the interval.
func (d *RestDriver) AddQueryIDs(ids []string) error {
	if err := d.Store.AddQueryIDs(ids); err != nil {
		return err
	}
	d.notify()
	return nil
}

// RemoveQueryIDs persists the removed ids and wakes the poll loop.
func (d *RestDriver) RemoveQueryIDs(ids []string) error {
	if err := d.Store.RemoveQueryIDs(ids); err != nil {
		return err
	}
	d.notify()
	return nil
}

func (d *RestDriver) notify() {
	select {
	case d.reconcile <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. It never returns early for lack of
// ids — it polls whatever Store's active query-id set holds each round,
// skipping the round entirely when that set is empty, so a later
// AddQueryIDs is picked up without restarting the driver.
func (d *RestDriver) Run(ctx context.Context) {
	log := d.Log.With().Str("component", "rest_worker").Str("source", d.Source).Logger()

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("polling cancelled")
			return
		case <-d.reconcile:
			log.Debug().Msg("query ids changed, polling early")
		case <-ticker.C:
			log.Info().Msg("polling")
		}

		ids, err := d.Store.GetQueryIDs()
		if err != nil {
			log.Error().Err(err).Msg("failed to read active query ids")
			continue
		}
		if len(ids) == 0 {
			log.Debug().Msg("no ids to poll")
			continue
		}

		idList := make([]string, 0, len(ids))
		for id := range ids {
			idList = append(idList, id)
		}
		d.pollOnce(ctx, log, idList)
	}
}

func (d *RestDriver) pollOnce(ctx context.Context, log zerolog.Logger, ids []string) {
	pollCtx, cancel := context.WithTimeout(ctx, d.Interval)
	defer cancel()

	start := time.Now()
	assets, err := d.Provider.GetAssetInfo(pollCtx, ids)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		d.Metrics.UpdatePolling(elapsed, metrics.PollingSuccess)
		if err := d.Store.SetAssetInfos(assets); err != nil {
			log.Error().Err(err).Msg("failed to store asset info")
		} else {
			log.Debug().Int("count", len(assets)).Msg("asset info updated")
		}
	case pollCtx.Err() != nil:
		d.Metrics.UpdatePolling(elapsed, metrics.PollingTimeout)
		log.Error().Msg("updating interval exceeded timeout")
	default:
		d.Metrics.UpdatePolling(elapsed, metrics.PollingFailed)
		log.Error().Err(err).Msg("failed to poll asset info")
	}
}
