package repository

import (
	"context"

	"github.com/alexivanou/citysearch/internal/config"
	"github.com/jmoiron/sqlx"
)

// KVTable is the table backing KVRepository
const KVTable = "kv_store"

// KVRepository stores opaque values by key
type KVRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Container holds all repositories
type Container struct {
	KV KVRepository
}

// NewRepositories creates repository implementations based on DB type
func NewRepositories(db *sqlx.DB, dbType config.DBType) *Container {
	if dbType == config.DBTypePostgreSQL {
		return &Container{
			KV: &pgKVRepository{db: db},
		}
	}

	// memory and sqlite share the SQLite dialect
	return &Container{
		KV: &sqliteKVRepository{db: db},
	}
}
