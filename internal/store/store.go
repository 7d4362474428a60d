// Package store persists the serialized jar text.
//
// Two backends exist: a flock-guarded local file for CLI use, and a single
// redis key for shared or server deployments. Both deal in the jar's text
// form only; parsing is the caller's job.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mmr-tortoise/portjar/internal/config"
	"github.com/mmr-tortoise/portjar/internal/logger"
)

// Store loads and saves the jar text.
type Store interface {
	// Load returns the stored text, or "" when nothing has been saved yet.
	Load(ctx context.Context) (string, error)

	// Save replaces the stored text.
	Save(ctx context.Context, text string) error

	// Close releases locks and connections.
	Close() error
}

// Open returns the backend selected by cfg.Store. For the file backend,
// exclusive selects a write lock; read-only commands pass false.
func Open(ctx context.Context, cfg *config.Config, exclusive bool, log logger.Logger) (Store, error) {
	switch cfg.Store {
	case config.StoreFile:
		fs, err := OpenFile(ctx, cfg.JarFile, exclusive)
		if err != nil {
			return nil, err
		}
		log.Debug("jar file locked", logger.String("path", fs.Path()), logger.Bool("exclusive", exclusive))
		return fs, nil
	case config.StoreRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:        cfg.Redis.Addr,
			Username:    cfg.Redis.Username,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			Key:         cfg.Redis.Key,
			DialTimeout: time.Duration(cfg.Redis.DialTimeout),
		}, log)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
