// Package store construye el repository.Store concreto según la configuración.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/hellowallet/internal/config"
	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/store/memory"
	"github.com/dropDatabas3/hellowallet/internal/store/pg"
)

// New crea el store según cfg.Storage.Driver ("postgres" | "memory").
func New(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres", "pg":
		if cfg.Storage.DSN == "" {
			return nil, fmt.Errorf("store: storage.dsn requerido para driver postgres")
		}
		return pg.New(ctx, cfg.Storage.DSN, pg.Options{
			MaxConns: int32(cfg.Storage.Postgres.MaxOpenConns),
			MinConns: int32(cfg.Storage.Postgres.MaxIdleConns),
		})
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: driver no soportado: %q", cfg.Storage.Driver)
	}
}
