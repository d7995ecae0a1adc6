package cli

import (
	"log"
	"os"

	"pollctl/internal/auth"
	"pollctl/internal/devserver"
	"pollctl/internal/storage"

	"github.com/spf13/cobra"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local poll service for development",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		dsn, _ := cmd.Flags().GetString("db")

		secret := []byte(os.Getenv("POLLCTL_JWT_SECRET"))
		if len(secret) == 0 {
			key, err := auth.GenerateSealKey()
			if err != nil {
				log.Fatalf("Error generating secret: %v", err)
			}
			secret = []byte(key)
			log.Printf("POLLCTL_JWT_SECRET not set; sessions will not survive a restart")
		}

		db, err := storage.Open(dsn)
		if err != nil {
			log.Fatalf("Error opening database: %v", err)
		}

		srv := devserver.New(db, secret)
		if err := srv.Run(cmd.Context(), addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	},
}

func init() {
	devserverCmd.Flags().String("addr", "127.0.0.1:8000", "listen address")
	devserverCmd.Flags().String("db", "pollctl.db", "SQLite path or postgres:// DSN")
}
