// Package session keeps the session token between CLI invocations. The API
// client never touches it: callers load the token and pass it explicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bastien2203/pi-medias/config"
)

// ErrNoSession means no token is stored.
var ErrNoSession = errors.New("not logged in")

// Store persists one session token.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.SessionStore.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.SessionStore {
	case "", "file":
		path := cfg.SessionFile
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("locate config dir: %w", err)
			}
			path = filepath.Join(dir, "pi-medias", "session")
		}
		return NewFileStore(path), nil
	case "redis":
		return ConnectRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}
