package storage

import (
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/native/flashpool"
)

// PoolStore persists flash-loan pools. GetPool returns nil without error when
// the pool does not exist.
type PoolStore interface {
	GetPool(id string) (*flashpool.Pool, error)
	PutPool(id string, pool *flashpool.Pool) error
	ListPools() ([]*flashpool.Pool, error)
	Close() error
}
