package main

import (
	"github.com/spf13/cobra"

	"github.com/kuitang/epic-notes/internal/config"
	"github.com/kuitang/epic-notes/internal/obs"
)

func newRootCmd() *cobra.Command {
	var flags config.Flags

	cmd := &cobra.Command{
		Use:           "notesd",
		Short:         "Notes with images, served as HTML and JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "path to a TOML config file")
	cmd.PersistentFlags().BoolVar(&flags.NoS3, "no-s3", false, "store images on local disk even if S3 is configured")

	cmd.AddCommand(
		newServeCmd(&flags),
		newSeedCmd(&flags),
		newVersionCmd(),
	)

	return cmd
}

// loadConfig loads configuration and configures logging from it.
func loadConfig(flags *config.Flags) (*config.Config, error) {
	cfg, err := config.Load(*flags)
	if err != nil {
		return nil, err
	}
	if err := obs.Init(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}
