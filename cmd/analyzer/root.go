package main

import (
	"github.com/spf13/cobra"

	"dzchess-analyzer/internal/config"
	"dzchess-analyzer/internal/logging"
)

// rootCmd is the root command; every sub-command loads the environment
// configuration before it runs.
func rootCmd() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:           "analyzer",
		Short:         "Ingests chess match history and serves per-player opening statistics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = *loaded
			logging.Init(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Caller: cfg.Log.Caller,
			})
			return nil
		},
	}

	cmd.AddCommand(
		serveCmd(&cfg),
		ingestCmd(&cfg),
		recomputeCmd(&cfg),
		sweepCmd(&cfg),
		versionCmd(&cfg),
	)
	return cmd
}

func versionCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s %s\n", cfg.App.Name, cfg.App.Version)
		},
	}
}
