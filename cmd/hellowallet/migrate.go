package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellowallet/internal/config"
	migrations "github.com/dropDatabas3/hellowallet/migrations/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down] [steps]",
		Short: "Aplica las migraciones embebidas de PostgreSQL",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			steps := 0
			if len(args) >= 1 && args[0] != "" {
				action = strings.ToLower(args[0])
			}
			if len(args) >= 2 {
				if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
					steps = n
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.DSN == "" {
				return fmt.Errorf("migrate: storage.dsn es requerido")
			}

			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("migrate: pgxpool: %w", err)
			}
			defer pool.Close()

			switch action {
			case "up":
				return applyMigrations(ctx, pool, "_up.sql", steps, false)
			case "down":
				return applyMigrations(ctx, pool, "_down.sql", steps, true)
			default:
				return fmt.Errorf("migrate: acción desconocida %q (up | down [steps])", action)
			}
		},
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, suffix string, steps int, reverse bool) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("migrate: read embedded fs: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		fmt.Printf("No hay migraciones %s. Nada para hacer.\n", suffix)
		return nil
	}

	sort.Strings(files)
	if reverse {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	fmt.Printf("Aplicando %d migración(es)...\n", len(files))
	for _, name := range files {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("migrate: read %s: %w", name, err)
		}
		start := time.Now()
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("migrate: exec %s: %w", name, err)
		}
		fmt.Printf("OK %s (%s)\n", name, time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}
