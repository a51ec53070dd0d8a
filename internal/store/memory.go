package store

import (
	"sync"

	"signalserver/internal/registry"
	"signalserver/internal/types"
)

// Memory is an in-process Store backed by plain maps under one RWMutex. It is
// the resolver/manager test fixture and is not meant for production use —
// nothing here needs a library, since the only concern is mutual exclusion.
type Memory struct {
	mu sync.RWMutex

	reg      *registry.Registry
	ipfsHash string
	hasHash  bool

	// assetInfo[prefix][id] = asset
	assetInfo map[string]map[string]types.AssetInfo
	// queryIDs[prefix] = set
	queryIDs map[string]map[string]struct{}

	activeSignalIDs    []string
	hasActiveSignalIDs bool
}

func NewMemory() *Memory {
	return &Memory{
		assetInfo: make(map[string]map[string]types.AssetInfo),
		queryIDs:  make(map[string]map[string]struct{}),
	}
}

func (m *Memory) SetRegistry(reg *registry.Registry, ipfsHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg = reg
	m.ipfsHash = ipfsHash
	m.hasHash = true
	return nil
}

func (m *Memory) GetRegistry() (*registry.Registry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reg == nil {
		return nil, ErrNoRegistry
	}
	return m.reg, nil
}

func (m *Memory) GetRegistryIPFSHash() (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ipfsHash, m.hasHash, nil
}

func (m *Memory) GetAssetInfo(prefix, id string) (types.AssetInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.assetInfo[prefix]
	if !ok {
		return types.AssetInfo{}, false, nil
	}
	asset, ok := bucket[id]
	return asset, ok, nil
}

func (m *Memory) InsertAssetInfo(prefix string, asset types.AssetInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketFor(prefix)[asset.ID] = asset
	return nil
}

// InsertBatchAssetInfo holds the write lock for the whole batch, so a
// concurrent reader never observes a partially-applied batch.
func (m *Memory) InsertBatchAssetInfo(prefix string, assets []types.AssetInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.bucketFor(prefix)
	for _, asset := range assets {
		bucket[asset.ID] = asset
	}
	return nil
}

func (m *Memory) bucketFor(prefix string) map[string]types.AssetInfo {
	bucket, ok := m.assetInfo[prefix]
	if !ok {
		bucket = make(map[string]types.AssetInfo)
		m.assetInfo[prefix] = bucket
	}
	return bucket
}

func (m *Memory) GetQueryIDs(prefix string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.queryIDs[prefix]))
	for id := range m.queryIDs[prefix] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *Memory) SetQueryIDs(prefix string, ids map[string]struct{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]struct{}, len(ids))
	for id := range ids {
		cp[id] = struct{}{}
	}
	m.queryIDs[prefix] = cp
	return nil
}

func (m *Memory) ContainsQueryID(prefix, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.queryIDs[prefix][id]
	return ok, nil
}

func (m *Memory) SetActiveSignalIDs(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(ids))
	copy(cp, ids)
	m.activeSignalIDs = cp
	m.hasActiveSignalIDs = true
	return nil
}

func (m *Memory) GetActiveSignalIDs() ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasActiveSignalIDs {
		return nil, false, nil
	}
	out := make([]string, len(m.activeSignalIDs))
	copy(out, m.activeSignalIDs)
	return out, true, nil
}
