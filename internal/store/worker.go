package store

import (
	"fmt"
	"sync"

	"signalserver/internal/types"
)

// WorkerStore scopes a Store to one source's prefix and serializes
// read-modify-write operations on that source's query-id set behind a single
// mutex, so concurrent AddQueryIDs/RemoveQueryIDs calls never interleave.
// ComputeQueryIDDifference and SetQueryIDs do not take that mutex.
//
// Grounded on original_source/bothan-lib/src/store/worker.rs, translated
// from tokio::sync::Mutex<()> to sync.Mutex.
type WorkerStore struct {
	store  Store
	prefix string
	mu     sync.Mutex
}

func NewWorkerStore(s Store, prefix string) *WorkerStore {
	return &WorkerStore{store: s, prefix: prefix}
}

// GetAsset implements resolver.Worker: Unsupported if id isn't in this
// source's active query-id set, Pending if subscribed but no value has
// arrived, Available otherwise.
func (w *WorkerStore) GetAsset(id string) (types.AssetState, error) {
	contains, err := w.store.ContainsQueryID(w.prefix, id)
	if err != nil {
		return types.AssetState{}, fmt.Errorf("worker store: contains query id: %w", err)
	}
	if !contains {
		return types.Unsupported(), nil
	}

	asset, ok, err := w.store.GetAssetInfo(w.prefix, id)
	if err != nil {
		return types.AssetState{}, fmt.Errorf("worker store: get asset info: %w", err)
	}
	if !ok {
		return types.Pending(), nil
	}
	return types.Available(asset), nil
}

func (w *WorkerStore) SetAssetInfo(asset types.AssetInfo) error {
	return w.store.InsertAssetInfo(w.prefix, asset)
}

func (w *WorkerStore) SetAssetInfos(assets []types.AssetInfo) error {
	return w.store.InsertBatchAssetInfo(w.prefix, assets)
}

func (w *WorkerStore) GetQueryIDs() (map[string]struct{}, error) {
	return w.store.GetQueryIDs(w.prefix)
}

// Difference is the added/removed query ids relative to the previously
// active set, as computed by ComputeQueryIDDifference.
type Difference struct {
	Added   []string
	Removed []string
}

func (w *WorkerStore) ComputeQueryIDDifference(ids map[string]struct{}) (Difference, error) {
	current, err := w.GetQueryIDs()
	if err != nil {
		return Difference{}, err
	}

	var diff Difference
	for id := range ids {
		if _, ok := current[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	for id := range current {
		if _, ok := ids[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff, nil
}

// AddQueryIDs merges ids into the current set. A no-op if ids is empty.
func (w *WorkerStore) AddQueryIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := w.GetQueryIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		current[id] = struct{}{}
	}
	return w.store.SetQueryIDs(w.prefix, current)
}

// RemoveQueryIDs deletes ids from the current set. Nothing is written if ids
// is empty or none of them are present. Adding ids that were absent and then
// removing them restores the original set (spec.md §8 idempotence property).
func (w *WorkerStore) RemoveQueryIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := w.GetQueryIDs()
	if err != nil {
		return err
	}

	before := len(current)
	for _, id := range ids {
		delete(current, id)
	}
	if len(current) == before {
		return nil
	}
	return w.store.SetQueryIDs(w.prefix, current)
}

func (w *WorkerStore) SetQueryIDs(ids map[string]struct{}) error {
	return w.store.SetQueryIDs(w.prefix, ids)
}
