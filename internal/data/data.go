package data

import (
	"context"
	"fmt"

	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
	"github.com/devricklin/keyword-forwarder/internal/infra/feishu"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// StoreOptions selects and configures the fingerprint store backend
type StoreOptions struct {
	Backend  string // sqlite, pebble or redis
	Path     string // SQLite file or Pebble directory
	RedisURL string
	Prefix   string // Redis key prefix
}

// Repositories contains all repositories
type Repositories struct {
	Message repo.MessageRepo
	Store   repo.Store
}

// NewRepositories creates all repositories
func NewRepositories(ctx context.Context, feishuClient *feishu.Client, opts StoreOptions) (*Repositories, error) {
	store, err := NewStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Message: NewFeishuRepo(feishuClient),
		Store:   store,
	}, nil
}

// NewStore opens the configured store backend
func NewStore(ctx context.Context, opts StoreOptions) (repo.Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.Path)
	case BackendPebble:
		return NewPebbleStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.Prefix)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", opts.Backend)
	}
}

// Close releases the store
func (r *Repositories) Close() error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}
