package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	// .env si existe; las env vars del sistema siempre ganan
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "hellowallet",
		Short: "Servicio de autenticación y firma threshold para wallets no custodiales",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path al config YAML")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newMigrateSharesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
