package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/epic-notes/internal/config"
	"github.com/kuitang/epic-notes/internal/seed"
)

func newSeedCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo users and notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := seed.Run(ctx, a.notes)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d notes\n", res.Users, res.Notes)
			return err
		},
	}
}
