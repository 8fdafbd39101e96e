package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/HerbHall/sleepcast/internal/backup"
	"github.com/HerbHall/sleepcast/internal/config"
	"github.com/HerbHall/sleepcast/internal/server"
	"github.com/HerbHall/sleepcast/internal/version"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the diary database and config to a .tar.gz archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "" {
				output = "sleepcast-backup-" + time.Now().UTC().Format("20060102T150405Z") + ".tar.gz"
			}
			dbName := filepath.Base(a.settings.Database.Path)
			if err := backup.Backup(cmd.Context(), a.db.DB(), dbName, a.v.ConfigFileUsed(), output, version.Short()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default sleepcast-backup-<time>.tar.gz)")
	return cmd
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "restore <archive.tar.gz>",
		Short: "Restore a backup into the configured data directory (stop the server first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := server.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			settings, err := config.Decode(v)
			if err != nil {
				return err
			}

			dir := filepath.Dir(settings.Database.Path)
			m, err := backup.Restore(cmd.Context(), args[0], dir, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "restored %s (sleepcast %s, %s) into %s\n",
				m.Database, m.Version, m.CreatedAt.Format(time.RFC3339), dir)
			if want := filepath.Base(settings.Database.Path); m.Database != want {
				fmt.Fprintf(out, "note: database.path expects %s; rename the restored file or update the config\n", want)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
