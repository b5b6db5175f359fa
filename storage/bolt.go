package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/native/flashpool"
)

var poolsBucket = []byte("pools")

// BoltPoolStore persists pools in a bbolt database, one JSON document per
// pool keyed by id.
type BoltPoolStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) the pool database at path.
func OpenBolt(path string) (*BoltPoolStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(poolsBucket)
		return createErr
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init buckets: %w", err)
	}
	return &BoltPoolStore{db: db}, nil
}

// GetPool implements PoolStore.
func (s *BoltPoolStore) GetPool(id string) (*flashpool.Pool, error) {
	var pool *flashpool.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(poolsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		decoded := new(flashpool.Pool)
		if err := json.Unmarshal(raw, decoded); err != nil {
			return fmt.Errorf("storage: decode pool %s: %w", id, err)
		}
		pool = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// PutPool implements PoolStore.
func (s *BoltPoolStore) PutPool(id string, pool *flashpool.Pool) error {
	raw, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("storage: encode pool %s: %w", id, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(poolsBucket).Put([]byte(id), raw)
	})
}

// ListPools implements PoolStore. bbolt iterates keys in byte order, so the
// listing is stable.
func (s *BoltPoolStore) ListPools() ([]*flashpool.Pool, error) {
	var pools []*flashpool.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(poolsBucket).ForEach(func(key, raw []byte) error {
			pool := new(flashpool.Pool)
			if err := json.Unmarshal(raw, pool); err != nil {
				return fmt.Errorf("storage: decode pool %s: %w", key, err)
			}
			pools = append(pools, pool)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

// Close implements PoolStore.
func (s *BoltPoolStore) Close() error { return s.db.Close() }
