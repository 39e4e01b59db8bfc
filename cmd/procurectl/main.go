package main

import (
	"fmt"
	"os"

	"procurement-backend/internal/config"
	"procurement-backend/internal/database"
	"procurement-backend/internal/server"
	"procurement-backend/internal/storage"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "procurectl",
	Short:         "Operator commands for the procurement backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// env is what every command needs; opened lazily so --help works without
// a database.
type env struct {
	cfg  *config.Config
	db   *gorm.DB
	deps server.Deps
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewLocalStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, deps: server.Wire(cfg, db, store)}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
