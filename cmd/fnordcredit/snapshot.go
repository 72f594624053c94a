package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fnordcredit/fnordcredit/internal/cliconfig"
	"github.com/fnordcredit/fnordcredit/pkg/jsondb"
)

func newSnapshotCmd(cfg *cliconfig.Config, opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write one backup of the canonical file and exit",
		Long: "Load <storage-prefix>.json and write it to a new timestamped backup, or to --out.\n" +
			"Do not run against a file a live server is writing; nothing coordinates the two.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, opts); err != nil {
				return err
			}

			store, err := jsondb.New(cfg.StoreConfig())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.LoadFromFile(ctx, store.CanonicalPath()); err != nil {
				return err
			}

			path := out
			if path == "" {
				path = store.BackupPath(time.Now())
			}
			if err := store.SaveToFile(ctx, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to this path instead of a timestamped backup")
	return cmd
}
