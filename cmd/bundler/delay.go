package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/bundler/internal/pool"
	"github.com/logflow/bundler/pkg/bundle"
	errs "github.com/logflow/bundler/pkg/errors"
)

var boundariesFlag string

var delayCmd = &cobra.Command{
	Use:   "delay TIMESTAMP[,TIMESTAMP...]...",
	Short: "Score a group of timestamps against boundaries",
	Long: `Compute the total notification delay of one group.

Timestamps are given as arguments, comma separated or not, and sorted before
scoring. Without --boundaries the configured search picks them.

Examples:
  bundler delay "2017-08-01 10:00:00,2017-08-01 10:05:00,2017-08-01 11:00:00,2017-08-01 12:00:00,2017-08-01 18:00:00"
  bundler delay --boundaries 0,2,3 1501581600 1501581900 1501585200 1501588800 1501610400`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelay,
}

func init() {
	delayCmd.Flags().StringVar(&boundariesFlag, "boundaries", "", "Partition ends x0,x1,x2 (0-based event indexes)")
	delayCmd.Flags().StringVar(&strategyFlag, "strategy", "", "Boundary search (two-phase, interleaved, exhaustive)")
	delayCmd.Flags().IntVar(&maxIterFlag, "max-iter", 0, "Moves applied per search phase")
	delayCmd.Flags().StringVar(&timezoneFlag, "timezone", "", "Time zone for timestamps without an offset")
}

func runDelay(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ts, err := parseTimestamps(args, loc)
	if err != nil {
		return err
	}
	slices.Sort(ts)

	var x bundle.Boundaries
	if boundariesFlag != "" {
		if x, err = parseBoundaries(boundariesFlag, len(ts)); err != nil {
			return err
		}
	} else {
		x = bundle.New(cfg.BundleOptions()...).Plan(ts)
	}

	printDelay(cmd, ts, x, loc)
	return nil
}

func printDelay(cmd *cobra.Command, ts []int64, x bundle.Boundaries, loc *time.Location) {
	out := cmd.OutOrStdout()
	initial := bundle.InitialBoundaries(len(ts))

	fmt.Fprintf(out, "events:      %d\n", len(ts))
	fmt.Fprintf(out, "initial:     %s  delay %s\n", initial, time.Duration(bundle.TotalDelay(ts, initial)))
	fmt.Fprintf(out, "boundaries:  %s  delay %s\n", x, time.Duration(bundle.TotalDelay(ts, x)))

	start := 0
	for p, end := range x.Ends(len(ts)) {
		if end < start {
			continue
		}
		fmt.Fprintf(out, "batch %d:     events %d-%d, sent %s\n",
			p+1, start, end, time.Unix(0, ts[end]).In(loc).Format(time.DateTime))
		start = end + 1
	}
}

func parseTimestamps(args []string, loc *time.Location) ([]int64, error) {
	var ts []int64
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			t, err := pool.ParseTimestamp([]byte(field), loc)
			if err != nil {
				return nil, errs.InvalidTimestamp(field, int64(len(ts)+1))
			}
			ts = append(ts, t)
		}
	}
	if len(ts) == 0 {
		return nil, errs.New(errs.CodeValidationFailed, "no timestamps given")
	}
	return ts, nil
}

func parseBoundaries(s string, n int) (bundle.Boundaries, error) {
	var x bundle.Boundaries
	parts := strings.Split(s, ",")
	if len(parts) != len(x) {
		return x, errs.New(errs.CodeValidationFailed, "boundaries need three indexes").WithContext("boundaries", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return x, errs.New(errs.CodeValidationFailed, "boundary is not an integer").WithContext("boundaries", s)
		}
		x[i] = v
	}
	if !x.Valid(n) {
		return x, errs.New(errs.CodeValidationFailed, "boundaries must be non-decreasing indexes below the event count").
			WithContext("boundaries", s).
			WithContext("events", n)
	}
	return x, nil
}
