// Package cli provides the amasctl command tree: replay a JSONL event log
// through the engine, inspect a user's live state, and run model diagnostics.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/tutu/internal/config"
	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/engine"
	"github.com/tutu-network/tutu/internal/store/memstore"
	"github.com/tutu-network/tutu/internal/store/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "amasctl",
	Short: "Operate the AMAS decision engine from the command line",
	Long: `amasctl drives the AMAS decision engine without the HTTP daemon:
replay a recorded event log, inspect a user's live state, and run the
combined bandit/MDM/VARK model diagnostics.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (defaults built in if omitted)")
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEngine loads the configured store (sqlite or in-memory) and returns
// an Engine wired against it, per the same Config the daemon uses.
func buildEngine() (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var store domain.StateStore
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = "amas.db"
		}
		db, openErr := sqlite.Open(dsn)
		if openErr != nil {
			return nil, fmt.Errorf("open sqlite store: %w", openErr)
		}
		store = db
	default:
		store = memstore.New()
	}

	engCfg := engine.DefaultConfig()
	engCfg.Bandit.Alpha = cfg.Engine.BanditAlpha
	engCfg.Bandit.Lambda = cfg.Engine.BanditLambda
	return engine.New(store, engCfg), nil
}
