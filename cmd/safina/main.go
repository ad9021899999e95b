package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heysubinoy/safinadb/internal/dispatch"
	"github.com/heysubinoy/safinadb/internal/store"
	"github.com/heysubinoy/safinadb/pkg/config"
	"github.com/heysubinoy/safinadb/pkg/kv"
	safinalog "github.com/heysubinoy/safinadb/pkg/log"
	"github.com/heysubinoy/safinadb/pkg/metrics"
)

const version = "1.0.0"

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd runs the interactive shell.
var rootCmd = &cobra.Command{
	Use:   "safina",
	Short: "SafinaDB - an in-memory key-value store shell",
	Long: `SafinaDB keeps a key-value mapping in memory for the lifetime of the process.

Commands are read one per line:
  insert <key> <value>
  get <key>
  update <key> <value>
  delete <key>
  stats
  exit`,
	Version:      version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = safinalog.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runShell,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "safina %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	shared := store.NewShared()

	var backend kv.Store = shared
	if cfg.Backend == config.BackendRaft {
		rs, err := store.NewRaftStore(shared, cfg.Raft, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := rs.Close(); err != nil {
				logger.Warn("raft shutdown failed", zap.Error(err))
			}
		}()
		backend = rs
	}

	instrumented := store.NewInstrumentedStore(backend, metrics.New(prometheus.NewRegistry()), logger)

	logger.Info("store ready", zap.String("backend", cfg.Backend))

	d := dispatch.New(instrumented,
		dispatch.WithPrompt(cfg.Prompt),
		dispatch.WithLogger(logger.Named("dispatch")),
	)
	return d.Run(cmd.InOrStdin(), cmd.OutOrStdout())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
