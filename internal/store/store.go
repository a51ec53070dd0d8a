// Package store implements the Shared Store (spec.md §4.1): the linearizable
// KV contract every worker and the manager read and write through, plus the
// per-source WorkerStore wrapper the resolver and workers actually use.
//
// Grounded on original_source/bothan-lib/src/store.rs and
// store/worker.rs, adapted from Rust's async_trait + Arc<Mutex<()>> pattern
// to a plain Go interface plus a sync.Mutex-guarded wrapper.
package store

import (
	"signalserver/internal/registry"
	"signalserver/internal/types"
)

// Store is the universal contract every backend (in-memory or badger-backed)
// must satisfy. All methods must be safe for concurrent use and atomic: a
// batch insert must be all-or-nothing under concurrent reads (spec.md §8
// invariant 6).
type Store interface {
	SetRegistry(reg *registry.Registry, ipfsHash string) error
	GetRegistry() (*registry.Registry, error)
	GetRegistryIPFSHash() (string, bool, error)

	GetAssetInfo(prefix, id string) (types.AssetInfo, bool, error)
	InsertAssetInfo(prefix string, asset types.AssetInfo) error
	InsertBatchAssetInfo(prefix string, assets []types.AssetInfo) error

	GetQueryIDs(prefix string) (map[string]struct{}, error)
	SetQueryIDs(prefix string, ids map[string]struct{}) error
	ContainsQueryID(prefix, id string) (bool, error)

	// SetActiveSignalIDs and GetActiveSignalIDs persist the last signal id
	// selection Manager.SetActiveSignalIDs was given, so it survives a
	// restart (spec.md §4.5 step 3).
	SetActiveSignalIDs(ids []string) error
	GetActiveSignalIDs() ([]string, bool, error)
}
