package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellowallet/internal/config"
	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/store"
)

// migrate-shares promueve shares legacy al rol server en una pasada
// explícita. El read path de firma nunca muta roles solo.
func newMigrateSharesCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate-shares",
		Short: "Promueve shares legacy al esquema server (pasada explícita)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ids, err := st.Shares().ListLegacyIdentities(ctx)
			if err != nil {
				return fmt.Errorf("migrate-shares: list: %w", err)
			}
			if len(ids) == 0 {
				fmt.Println("No hay shares legacy. Nada para hacer.")
				return nil
			}

			fmt.Printf("Identidades con share legacy: %d\n", len(ids))
			if dryRun {
				for _, id := range ids {
					fmt.Println("  " + id)
				}
				return nil
			}

			promoted, skipped := 0, 0
			for _, id := range ids {
				switch err := st.Shares().PromoteLegacy(ctx, id); {
				case err == nil:
					promoted++
				case errors.Is(err, repository.ErrConflict):
					// ya tiene share server: la legacy queda como resto histórico
					skipped++
				default:
					return fmt.Errorf("migrate-shares: promote %s: %w", id, err)
				}
			}
			fmt.Printf("Promovidas: %d, salteadas (ya tenían server): %d\n", promoted, skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Solo listar, no promover")
	return cmd
}
