// Package store persists raw ACS API responses so repeated analyses of the
// same table do not hit the Census API again.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/config"
)

// Store caches response bodies keyed by request URL (API key removed).
type Store interface {
	// GetResponse returns the cached body, or nil when absent or expired.
	GetResponse(ctx context.Context, key string) ([]byte, error)
	SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the cache selected by cfg.Driver and migrates its schema.
// Driver "none" (or empty) yields a Nop store.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown cache driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	zap.L().Debug("response cache ready", zap.String("driver", cfg.Driver))
	return s, nil
}

// Nop is a Store that never hits.
type Nop struct{}

func (Nop) GetResponse(context.Context, string) ([]byte, error)              { return nil, nil }
func (Nop) SetResponse(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) DeleteExpired(context.Context) (int, error)                       { return 0, nil }
func (Nop) Migrate(context.Context) error                                    { return nil }
func (Nop) Close() error                                                     { return nil }
