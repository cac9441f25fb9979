package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quickseek/internal/config"
	"quickseek/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "quickseek",
		Short: "Instant file and folder name search",
		Long: `quickseek keeps a prefix index of every file and directory name on your
volumes and answers name searches from it in milliseconds.

The index is built once per volume and kept current from filesystem change
notifications while 'quickseek serve' runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
				return fmt.Errorf("failed to init logging: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logging.Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath(), "Config file path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newRebuildCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newVolumesCmd(opts))
	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
