package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/soloport/devicegate/internal/model"
)

const (
	redisBlockPrefix = "devicegate:block:"
	redisBlockIndex  = "devicegate:blocks"
	redisOwnerKey    = "devicegate:owner"
)

// RedisBackend persists records in Redis. Useful when the gate runs in
// a container without a stable disk. Records carry no TTL: blocks are
// permanent by design.
type RedisBackend struct {
	client *redis.Client
}

// OpenRedis connects to the Redis instance described by the URL
// (redis://[user:pass@]host:port/db) and verifies connectivity.
func OpenRedis(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

// SaveBlock upserts a block record and indexes its fingerprint.
func (r *RedisBackend) SaveBlock(ctx context.Context, rec model.BlockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisBlockPrefix+string(rec.Fingerprint), data, 0)
	pipe.SAdd(ctx, redisBlockIndex, string(rec.Fingerprint))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block record. Privileged path only.
func (r *RedisBackend) DeleteBlock(ctx context.Context, fp model.Fingerprint) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisBlockPrefix+string(fp))
	pipe.SRem(ctx, redisBlockIndex, string(fp))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

// LoadBlocks returns every persisted block record.
func (r *RedisBackend) LoadBlocks(ctx context.Context) ([]model.BlockRecord, error) {
	fps, err := r.client.SMembers(ctx, redisBlockIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("read block index: %w", err)
	}

	var out []model.BlockRecord
	for _, fp := range fps {
		data, err := r.client.Get(ctx, redisBlockPrefix+fp).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // index entry without record; skip
		}
		if err != nil {
			return nil, fmt.Errorf("read block %s: %w", model.Fingerprint(fp).Prefix(), err)
		}
		var rec model.BlockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse block %s: %w", model.Fingerprint(fp).Prefix(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveOwner writes the single owner record.
func (r *RedisBackend) SaveOwner(ctx context.Context, rec model.OwnerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal owner: %w", err)
	}
	if err := r.client.Set(ctx, redisOwnerKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save owner: %w", err)
	}
	return nil
}

// DeleteOwner clears the owner record. Privileged path only.
func (r *RedisBackend) DeleteOwner(ctx context.Context) error {
	if err := r.client.Del(ctx, redisOwnerKey).Err(); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	return nil
}

// LoadOwner returns the persisted owner record, if any.
func (r *RedisBackend) LoadOwner(ctx context.Context) (model.OwnerRecord, bool, error) {
	data, err := r.client.Get(ctx, redisOwnerKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.OwnerRecord{}, false, nil
	}
	if err != nil {
		return model.OwnerRecord{}, false, fmt.Errorf("read owner: %w", err)
	}

	var rec model.OwnerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.OwnerRecord{}, false, fmt.Errorf("parse owner: %w", err)
	}
	return rec, true, nil
}

// Close closes the client connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
