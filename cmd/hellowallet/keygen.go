package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Genera claves para el servicio (master key del sharebox o seed de sesiones)",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch kind {
			case "sharebox":
				key := make([]byte, 32)
				if _, err := rand.Read(key); err != nil {
					return err
				}
				fmt.Println("SHAREBOX_MASTER_KEY=" + base64.StdEncoding.EncodeToString(key))
			case "session":
				seed := make([]byte, ed25519.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return err
				}
				fmt.Println("HW_SESSION_SIGNING_SEED=" + base64.StdEncoding.EncodeToString(seed))
			default:
				return fmt.Errorf("keygen: tipo desconocido %q (sharebox | session)", kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "type", "sharebox", "Tipo de clave: sharebox | session")
	return cmd
}
