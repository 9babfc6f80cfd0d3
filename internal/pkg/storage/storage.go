package storage

import (
	"context"
	"fmt"
)

// Storage stores generated documents and serves them by URL.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	GetURL(key string) string
}

// Config selects and configures a backend.
type Config struct {
	Backend   string // r2 | local
	LocalPath string
	LocalURL  string
	R2        R2Config
}

// New builds the configured backend.
func New(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "r2":
		return NewR2Storage(cfg.R2)
	case "local", "":
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
