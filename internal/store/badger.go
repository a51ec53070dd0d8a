package store

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"signalserver/internal/registry"
	"signalserver/internal/types"
)

// Fixed key layout for the durable backend (spec.md §6 persisted-state
// layout): the registry and its IPFS hash live at constant keys; asset info
// and query ids are namespaced per source under a prefix.
const (
	registryKey        = "registry/v1"
	registryHashKey    = "registry_ipfs_hash/v1"
	activeSignalIDsKey = "active_signal_ids/v1"
)

// Config mirrors the teacher's database.Config shape (Path/Name plus a
// profile-style knob), adapted from a relational-connection profile to a
// badger in-memory/persistent toggle — the only option this backend actually
// needs to vary.
type Config struct {
	// Path is the directory badger stores its LSM files in. Ignored when
	// InMemory is true.
	Path string
	// Name is a friendly label used only in log lines.
	Name string
	// InMemory runs badger with no on-disk files, for tests.
	InMemory bool
}

// Badger is a Store backed by an embedded LSM KV engine, the Go analogue of
// bothan's RocksDB-backed durable store.
//
// Grounded on original_source/bothan-core/src/store/rocks_db.rs for the key
// layout and teacher's internal/database/db.go for the Config/New shape.
type Badger struct {
	db   *badger.DB
	name string
}

func New(cfg Config) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Path).WithInMemory(cfg.InMemory).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger db %s: %w", cfg.Name, err)
	}

	log.Info().Str("component", "store").Str("name", cfg.Name).Bool("in_memory", cfg.InMemory).Msg("badger store opened")

	return &Badger{db: db, name: cfg.Name}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) SetRegistry(reg *registry.Registry, ipfsHash string) error {
	data, err := registry.Encode(reg)
	if err != nil {
		return fmt.Errorf("store: encode registry: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(registryKey), data); err != nil {
			return err
		}
		return txn.Set([]byte(registryHashKey), []byte(ipfsHash))
	})
}

func (b *Badger) GetRegistry() (*registry.Registry, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(registryKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoRegistry
	}
	if err != nil {
		return nil, fmt.Errorf("store: get registry: %w", err)
	}

	builder, err := registry.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode registry: %w", err)
	}
	return builder.Validate()
}

func (b *Badger) GetRegistryIPFSHash() (string, bool, error) {
	var hash string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(registryHashKey))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		hash = string(data)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get registry ipfs hash: %w", err)
	}
	return hash, true, nil
}

func assetInfoKey(prefix, id string) []byte {
	return []byte(fmt.Sprintf("asset/%s/%s", prefix, id))
}

func queryIDsKey(prefix string) []byte {
	return []byte(fmt.Sprintf("query_ids/%s", prefix))
}

func (b *Badger) GetAssetInfo(prefix, id string) (types.AssetInfo, bool, error) {
	var asset types.AssetInfo
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(assetInfoKey(prefix, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := decodeAssetInfo(data, &asset); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return types.AssetInfo{}, false, fmt.Errorf("store: get asset info: %w", err)
	}
	return asset, found, nil
}

func (b *Badger) InsertAssetInfo(prefix string, asset types.AssetInfo) error {
	data, err := encodeAssetInfo(asset)
	if err != nil {
		return fmt.Errorf("store: encode asset info: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(assetInfoKey(prefix, asset.ID), data)
	})
}

// InsertBatchAssetInfo writes every asset within a single badger transaction,
// so concurrent readers (also using transactions) never observe a partial
// batch (spec.md §8 invariant 6: all-or-nothing).
func (b *Badger) InsertBatchAssetInfo(prefix string, assets []types.AssetInfo) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, asset := range assets {
			data, err := encodeAssetInfo(asset)
			if err != nil {
				return fmt.Errorf("store: encode asset info %q: %w", asset.ID, err)
			}
			if err := txn.Set(assetInfoKey(prefix, asset.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) GetQueryIDs(prefix string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(queryIDsKey(prefix))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return decodeQueryIDs(data, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("store: get query ids: %w", err)
	}
	return ids, nil
}

func (b *Badger) SetQueryIDs(prefix string, ids map[string]struct{}) error {
	data, err := encodeQueryIDs(ids)
	if err != nil {
		return fmt.Errorf("store: encode query ids: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(queryIDsKey(prefix), data)
	})
}

func (b *Badger) ContainsQueryID(prefix, id string) (bool, error) {
	ids, err := b.GetQueryIDs(prefix)
	if err != nil {
		return false, err
	}
	_, ok := ids[id]
	return ok, nil
}

func (b *Badger) SetActiveSignalIDs(ids []string) error {
	data, err := encodeActiveSignalIDs(ids)
	if err != nil {
		return fmt.Errorf("store: encode active signal ids: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(activeSignalIDsKey), data)
	})
}

func (b *Badger) GetActiveSignalIDs() ([]string, bool, error) {
	var ids []string
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(activeSignalIDsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := decodeActiveSignalIDs(data, &ids); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get active signal ids: %w", err)
	}
	return ids, found, nil
}
