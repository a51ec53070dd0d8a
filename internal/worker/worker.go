// Package worker implements the Asset Worker (spec.md §4.3): a generic
// websocket-subscription driver and a generic REST-polling driver, each
// wrapping a per-exchange AssetInfoProvider and writing results through a
// store.WorkerStore.
//
// Grounded on original_source/bothan-lib/src/worker/{websocket,rest}.rs for
// the driver loops (reconnect backoff, idle timeout, poll-with-timeout), and
// teacher's internal/clients/tradernet/websocket_client.go for the Go idiom
// of a mutex-guarded conn, a cancel-context, and a stopChan.
package worker

import (
	"context"
	"time"

	"signalserver/internal/types"
)

// Data is the tagged payload a websocket provider's Next yields.
type DataKind int

const (
	DataAssetInfo DataKind = iota
	DataPing
	DataUnused
)

type Data struct {
	Kind   DataKind
	Assets []types.AssetInfo
}

// AssetInfoProvider is a live connection to one exchange's websocket feed.
type AssetInfoProvider interface {
	// Subscribe asks the exchange to start streaming the given query ids.
	// Implementations should chunk internally if the exchange limits how
	// many ids may be subscribed per message.
	Subscribe(ctx context.Context, ids []string) error
	// Unsubscribe asks the exchange to stop streaming the given query ids,
	// without tearing down the connection.
	Unsubscribe(ctx context.Context, ids []string) error
	// Next blocks until the next message is available, ctx is cancelled, or
	// the connection drops (returns ok=false).
	Next(ctx context.Context) (data Data, err error, ok bool)
	Close() error
}

// AssetInfoProviderConnector dials a fresh AssetInfoProvider.
type AssetInfoProviderConnector interface {
	Connect(ctx context.Context) (AssetInfoProvider, error)
}

// RestAssetInfoProvider fetches a batch of asset info in one round trip.
type RestAssetInfoProvider interface {
	GetAssetInfo(ctx context.Context, ids []string) ([]types.AssetInfo, error)
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 64 * time.Second
)
