// Package storage provides the durable key-value substrate behind the
// credential store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"socialclient/config"
	"socialclient/db"

	"github.com/go-redis/redis/v8"
)

var ErrClosed = errors.New("storage is closed")

// KV is a string key-value store. SetMany and Delete apply all keys or none.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open builds the store selected by conf.Storage.Driver.
func Open(ctx context.Context, conf *config.ConfigSchema) (KV, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is nil")
	}
	switch conf.Storage.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return OpenFileStore(conf.Storage.Path, conf.Storage.Passphrase)
	case "sqlite", "postgres":
		orm, err := db.Open(conf.Storage.Driver, conf)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql store: %w", err)
		}
		return NewSQLStore(orm), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", conf.Redis.Host, conf.Redis.Port),
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisStore(client, conf.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", conf.Storage.Driver)
	}
}
