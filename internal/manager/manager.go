// Package manager implements the Asset Manager (spec.md §4.5): the thin
// orchestrator tying the registry, workers, and resolver together behind
// three operations — SetActiveSignalIDs, SetRegistryFromIPFS, GetPrices.
//
// Grounded on
// original_source/bothan-core/src/manager/crypto_asset_info/manager.rs.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signalserver/internal/ipfs"
	"signalserver/internal/registry"
	"signalserver/internal/resolver"
	"signalserver/internal/store"
	"signalserver/internal/types"
)

// AssetWorker is the per-source capability the manager needs: read the
// current state of one of its query ids, diff a desired id set against what
// is currently active, and add/remove ids incrementally. Grounded on
// original_source/bothan-core/src/worker.rs's AssetWorker trait
// (get_asset / set_query_ids) and set_workers_query_ids in
// original_source/bothan-core/src/manager/crypto_asset_info/manager.rs,
// which drives the live connection off the diff rather than a blanket
// overwrite.
type AssetWorker interface {
	GetAsset(queryID string) (types.AssetState, error)
	ComputeQueryIDDifference(ids map[string]struct{}) (store.Difference, error)
	AddQueryIDs(ids []string) error
	RemoveQueryIDs(ids []string) error
}

var (
	ErrUnsupportedVersion = errors.New("manager: registry version does not satisfy the required range")
	ErrInvalidRegistry    = errors.New("manager: fetched registry failed validation")
)

// Manager is the crypto price-signal orchestrator.
type Manager struct {
	mu             sync.RWMutex
	workers        map[string]AssetWorker
	store          store.Store
	staleThreshold int64
	ipfsClient     ipfs.Client
	versionReq     VersionRange
}

func New(s store.Store, ipfsClient ipfs.Client, staleThreshold int64, versionReq VersionRange) *Manager {
	return &Manager{
		workers:        make(map[string]AssetWorker),
		store:          s,
		staleThreshold: staleThreshold,
		ipfsClient:     ipfsClient,
		versionReq:     versionReq,
	}
}

// AddWorker registers a named source's worker. It takes the manager's write
// lock, so it is safe for concurrent use with itself and the other methods.
func (m *Manager) AddWorker(name string, w AssetWorker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[name] = w
}

// SetActiveSignalIDs recomputes, for every source reachable from signalIDs,
// the exact set of query ids that source must now be subscribed to, diffs
// that against what each worker currently has active, and adds/removes only
// the delta — so a live websocket connection is told to subscribe/unsubscribe
// incrementally instead of being torn down (spec.md §4.5 step 2). The
// resulting selection is persisted so it survives a restart (step 3).
func (m *Manager) SetActiveSignalIDs(signalIDs []string) error {
	m.mu.RLock()
	reg, err := m.store.GetRegistry()
	if err != nil {
		m.mu.RUnlock()
		return fmt.Errorf("manager: set active signal ids: %w", err)
	}
	workers := make(map[string]AssetWorker, len(m.workers))
	for name, w := range m.workers {
		workers[name] = w
	}
	m.mu.RUnlock()

	perSource := reachableQueryIDsBySource(signalIDs, reg)

	for name, worker := range workers {
		diff, err := worker.ComputeQueryIDDifference(perSource[name])
		if err != nil {
			return fmt.Errorf("manager: diff query ids for source %q: %w", name, err)
		}
		if err := worker.AddQueryIDs(diff.Added); err != nil {
			return fmt.Errorf("manager: add query ids for source %q: %w", name, err)
		}
		if err := worker.RemoveQueryIDs(diff.Removed); err != nil {
			return fmt.Errorf("manager: remove query ids for source %q: %w", name, err)
		}
	}

	if err := m.store.SetActiveSignalIDs(signalIDs); err != nil {
		return fmt.Errorf("manager: persist active signal ids: %w", err)
	}
	return nil
}

// reachableQueryIDsBySource walks the full dependency closure of signalIDs
// (including signals only reached via Route, not just the requested ones
// directly) and buckets every SourceQuery's query id by source id.
func reachableQueryIDsBySource(signalIDs []string, reg *registry.Registry) map[string]map[string]struct{} {
	perSource := make(map[string]map[string]struct{})
	seen := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true

		signal, ok := reg.Get(id)
		if !ok {
			return
		}
		for _, sq := range signal.SourceQueries {
			bucket, ok := perSource[sq.SourceID]
			if !ok {
				bucket = make(map[string]struct{})
				perSource[sq.SourceID] = bucket
			}
			bucket[sq.QueryID] = struct{}{}

			for _, route := range sq.Routes {
				visit(route.SignalID)
			}
		}
	}

	for _, id := range signalIDs {
		visit(id)
	}
	return perSource
}

// GetPrices resolves a PriceState for each requested signal id against the
// currently installed registry and each worker's live data, excluding any
// source observation older than now minus the manager's stale threshold.
func (m *Manager) GetPrices(ids []string) ([]types.PriceState, error) {
	m.mu.RLock()
	reg, err := m.store.GetRegistry()
	if err != nil {
		m.mu.RUnlock()
		return nil, fmt.Errorf("manager: get prices: %w", err)
	}
	workers := make(map[string]resolver.Worker, len(m.workers))
	for name, w := range m.workers {
		workers[name] = w
	}
	m.mu.RUnlock()

	staleCutoff := time.Now().Unix() - m.staleThreshold
	return resolver.Resolve(ids, workers, reg, staleCutoff, nil), nil
}

// ActiveSources returns the names of every source the manager has a worker
// registered for, in no particular order.
func (m *Manager) ActiveSources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.workers))
	for name := range m.workers {
		names = append(names, name)
	}
	return names
}

// VersionRequirement returns the registry version range this manager
// enforces, in `>=X.Y.Z` form.
func (m *Manager) VersionRequirement() string {
	return m.versionReq.String()
}

// RegistryIPFSHash returns the IPFS hash of the currently installed
// registry, if one has been installed.
func (m *Manager) RegistryIPFSHash() (string, bool, error) {
	hash, ok, err := m.store.GetRegistryIPFSHash()
	if err != nil {
		return "", false, fmt.Errorf("manager: get registry ipfs hash: %w", err)
	}
	return hash, ok, nil
}

// SetRegistryFromIPFS fetches, parses, and validates the registry published
// at hash — gated on version first matching the manager's required range —
// and atomically swaps it into the store. On any failure the previously
// installed registry remains in effect.
func (m *Manager) SetRegistryFromIPFS(ctx context.Context, hash, version string) error {
	matches, err := m.versionReq.Matches(version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	if !matches {
		return ErrUnsupportedVersion
	}

	text, err := m.ipfsClient.Get(ctx, hash)
	if err != nil {
		return fmt.Errorf("manager: fetch registry from ipfs: %w", err)
	}

	builder, err := registry.Decode([]byte(text))
	if err != nil {
		return fmt.Errorf("manager: parse registry: %w", err)
	}

	reg, err := builder.Validate()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	if err := m.store.SetRegistry(reg, hash); err != nil {
		return fmt.Errorf("manager: install registry: %w", err)
	}
	return nil
}
