package main

import (
	"github.com/spf13/cobra"

	"github.com/logflow/bundler/pkg/config"
)

// Run flags. Only flags set on the command line override the configuration.
var (
	inputPath      string
	outputPath     string
	formatFlag     string
	engineFlag     string
	strategyFlag   string
	policyFlag     string
	quarantinePath string
	timezoneFlag   string
	compression    string
	delimiter      string
	rowsFlag       int
	workersFlag    int
	maxIterFlag    int
	headerFlag     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bundle notifications for an event file",
	Long: `Read events, bundle them per user and day and write the notifications.

The input may be a local path, "-" for stdin, an http(s) URL or an s3:// URI.
Without --input the public sample file is downloaded.

Examples:
  bundler run
  bundler run -p notifications.csv -n 20
  bundler run -i s3://bucket/events.csv -f parquet -o s3://bucket/out.parquet
  cat events.csv | bundler run -i - -f csv > notifications.csv
  bundler run -i events.csv -f redis --error-policy quarantine --quarantine bad.jsonl`,
	RunE: runBundle,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&inputPath, "input", "i", "", "Input location (path, '-', http(s) URL or s3:// URI)")
	f.StringVarP(&inputPath, "path_csv", "p", "", "Alias of --input")
	f.StringVarP(&outputPath, "output", "o", "", "Output location (path, '-' or s3:// URI)")
	f.StringVarP(&formatFlag, "format", "f", "", "Output format (table, csv, parquet, xlsx, redis)")
	f.IntVar(&rowsFlag, "rows", 0, "Rows printed in table format (0 = all)")
	f.IntVarP(&rowsFlag, "nrows_print", "n", 0, "Alias of --rows")
	f.StringVar(&engineFlag, "engine", "", "Input engine (go, duckdb)")
	f.StringVar(&strategyFlag, "strategy", "", "Boundary search (two-phase, interleaved, exhaustive)")
	f.IntVar(&maxIterFlag, "max-iter", 0, "Moves applied per search phase")
	f.IntVarP(&workersFlag, "workers", "w", 0, "Concurrent groups (0 = number of CPUs)")
	f.StringVar(&policyFlag, "error-policy", "", "Failure policy (strict, skip, quarantine)")
	f.StringVar(&quarantinePath, "quarantine", "", "Quarantine file for failed rows and groups (JSON Lines)")
	f.StringVar(&timezoneFlag, "timezone", "", "Time zone that defines a day")
	f.StringVar(&compression, "compression", "", "Parquet compression (snappy, gzip, zstd, lz4, none)")
	f.StringVar(&delimiter, "delimiter", "", "Input field delimiter")
	f.BoolVar(&headerFlag, "header", false, "Input has a header row")
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	changed := func(names ...string) bool {
		for _, n := range names {
			if f.Changed(n) {
				return true
			}
		}
		return false
	}

	if changed("input", "path_csv") {
		cfg.Input.Path = inputPath
	}
	if changed("output") {
		cfg.Output.Path = outputPath
	}
	if changed("format") {
		cfg.Output.Format = formatFlag
	}
	if changed("rows", "nrows_print") {
		cfg.Output.Rows = rowsFlag
	}
	if changed("engine") {
		cfg.Input.Engine = engineFlag
	}
	if changed("strategy") {
		cfg.Bundle.Strategy = strategyFlag
	}
	if changed("max-iter") {
		cfg.Bundle.MaxIter = maxIterFlag
	}
	if changed("workers") {
		cfg.Run.Workers = workersFlag
	}
	if changed("error-policy") {
		cfg.Run.ErrorPolicy = policyFlag
	}
	if changed("quarantine") {
		cfg.Run.QuarantinePath = quarantinePath
	}
	if changed("timezone") {
		cfg.Input.Timezone = timezoneFlag
	}
	if changed("compression") {
		cfg.Output.Compression = compression
	}
	if changed("delimiter") {
		cfg.Input.Delimiter = delimiter
	}
	if changed("header") {
		cfg.Input.Header = headerFlag
	}
}

func runBundle(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := startTelemetry(cmd.Context(), cfg); err != nil {
		return err
	}

	_, err := newJob(cmd, cfg).run(cmd.Context())
	return err
}
