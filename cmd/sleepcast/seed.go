package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HerbHall/sleepcast/internal/seed"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	defaults := seed.DefaultOptions(time.Now())
	o := defaults
	var start string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty diary with a generated free-running sleep history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := parseOptionalTime(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if at.IsZero() {
				at = time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(o.Nights) * o.DayLength)
			}
			o.Start = at

			a, err := openApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := seed.SeedDiary(cmd.Context(), a.svc, o)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "diary already has periods; nothing seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d periods starting %s\n", n, at.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first sleep time (RFC 3339); defaults to --nights cycles ago")
	cmd.Flags().IntVarP(&o.Nights, "nights", "n", defaults.Nights, "number of periods to generate")
	cmd.Flags().DurationVar(&o.DayLength, "day-length", defaults.DayLength, "time between successive sleeps")
	cmd.Flags().DurationVar(&o.SleepFor, "sleep", defaults.SleepFor, "length of each sleep")
	cmd.Flags().DurationVar(&o.Jitter, "jitter", defaults.Jitter, "random shift applied to each boundary")
	cmd.Flags().Uint64Var(&o.Seed, "seed", defaults.Seed, "random seed")
	return cmd
}
