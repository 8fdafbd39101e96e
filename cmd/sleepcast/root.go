package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HerbHall/sleepcast/internal/diary"
	"github.com/HerbHall/sleepcast/internal/render"
	"github.com/HerbHall/sleepcast/internal/version"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sleepcast",
		Short:         "sleepcast - sleep diary and sleep/wake forecaster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration file")

	root.AddCommand(
		newServeCmd(opts),
		newForecastCmd(opts),
		newRecordCmd(opts),
		newImportCmd(opts),
		newPeriodsCmd(opts),
		newSeedCmd(opts),
		newBackupCmd(opts),
		newRestoreCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newForecastCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		now    string
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Print the forecast table computed from the whole diary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			at, err := parseOptionalTime(now)
			if err != nil {
				return fmt.Errorf("--now: %w", err)
			}

			a, err := openApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.svc.Forecast(cmd.Context(), at)
			if err != nil {
				return err
			}
			if err := render.Write(cmd.OutOrStdout(), f, rep.Table, rep.Sheet); err != nil {
				return err
			}
			if save {
				snap, err := a.svc.Refresh(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved snapshot %s\n", snap.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, csv or json")
	cmd.Flags().StringVar(&now, "now", "", "evaluate as of this RFC 3339 time instead of the clock")
	cmd.Flags().BoolVar(&save, "save", false, "also store the forecast as the latest snapshot")
	return cmd
}

func newRecordCmd(opts *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:       "record sleep|wake",
		Short:     "Record falling asleep or waking up",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(sleep.KindSleep), string(sleep.KindWake)},
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseOptionalTime(at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}

			a, err := openApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			var p *sleep.Period
			if sleep.Kind(args[0]) == sleep.KindWake {
				p, err = a.svc.RecordWake(cmd.Context(), when)
			} else {
				p, err = a.svc.RecordSleep(cmd.Context(), when, diary.SourceCLI)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if p.AwakeAt != nil {
				fmt.Fprintf(out, "woke %s after %s asleep (%s)\n",
					render.FormatTime(p.AwakeAt), render.FormatDuration(p.AwakeAt.Sub(p.AsleepAt)), p.ID)
			} else {
				fmt.Fprintf(out, "asleep %s (%s)\n", render.FormatTime(&p.AsleepAt), p.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 time of the event (default now)")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Append periods from a CSV of asleep_at,awake_at rows (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			a, err := openApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.svc.Import(cmd.Context(), r, diary.SourceImport)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d periods\n", n)
			return nil
		},
	}
}

func newPeriodsCmd(opts *rootOptions) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List the recorded sleep periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if last < 0 {
				return errors.New("--last must not be negative")
			}
			a, err := openApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			periods, err := a.svc.ListPeriods(cmd.Context())
			if err != nil {
				return err
			}
			if last > 0 && len(periods) > last {
				periods = periods[len(periods)-last:]
			}
			return render.Periods(cmd.OutOrStdout(), periods)
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "only show the most recent n periods")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// parseOptionalTime parses an RFC 3339 flag value; empty means "now",
// which the service represents as the zero time.
func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
