package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/relaydesk/internal/config"
	"github.com/foxzi/relaydesk/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	logger := newLogger(cfg.Logging, os.Stderr)
	if err := database.Migrate(cmd.Context(), logger); err != nil {
		return err
	}

	v, err := database.Version(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Migrations completed successfully (version %d)\n", v)
	return nil
}
