// Package store is the durable side channel behind the gate's
// in-memory authoritative state. Persistence is best effort: the
// decision path never waits on a backend, and a failing backend
// degrades the service to in-memory-only operation with a logged
// warning, never a request failure.
package store

import (
	"context"
	"fmt"

	"github.com/soloport/devicegate/internal/model"
)

// Backend persists owner and block records. Implementations must be
// safe for concurrent use. Request handlers never call a Backend
// directly; writes go through the async Writer.
type Backend interface {
	SaveBlock(ctx context.Context, rec model.BlockRecord) error
	DeleteBlock(ctx context.Context, fp model.Fingerprint) error
	LoadBlocks(ctx context.Context) ([]model.BlockRecord, error)

	SaveOwner(ctx context.Context, rec model.OwnerRecord) error
	DeleteOwner(ctx context.Context) error
	LoadOwner(ctx context.Context) (model.OwnerRecord, bool, error)

	Close() error
}

// Config selects and configures the durable backend.
// RedisURL takes precedence when both are set; with neither, the gate
// runs in-memory only.
type Config struct {
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
}

// Open constructs the configured backend. A nil return with nil error
// means no durable store was configured.
func Open(cfg Config) (Backend, error) {
	switch {
	case cfg.RedisURL != "":
		b, err := OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("store: open redis: %w", err)
		}
		return b, nil
	case cfg.SQLitePath != "":
		b, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		return b, nil
	default:
		return nil, nil
	}
}
