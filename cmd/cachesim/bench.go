package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/benchmarks"
	"github.com/sarchlab/cachemodel/results"
)

type benchOptions struct {
	configPath string
	core       bool
	csv        bool
	json       bool
	verbose    bool
	parallel   int
	resultsDB  string
}

func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run synthetic access patterns against a set of caches",
		Long: "bench replays the built-in access patterns on every cache. " +
			"Without --config it compares the replacement policies on a " +
			"32 KiB cache.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML or JSON file describing the caches")
	f.BoolVar(&opts.core, "core", false, "Run only the core patterns")
	f.BoolVar(&opts.csv, "csv", false, "Output results in CSV format")
	f.BoolVar(&opts.json, "json", false, "Output results in JSON format")
	f.BoolVar(&opts.verbose, "verbose", false, "Log every finished run")
	f.IntVar(&opts.parallel, "parallel", 0, "Concurrent runs (0 uses all CPUs)")
	f.StringVar(&opts.resultsDB, "results", "", "Record results in this SQLite database")
	cmd.MarkFlagsMutuallyExclusive("csv", "json")

	return cmd
}

func (o *benchOptions) run(cmd *cobra.Command) error {
	harnessConfig := benchmarks.DefaultConfig()

	cfg, err := loadConfig(cmd, o.configPath)
	if err != nil {
		return err
	}
	if cfg != nil {
		harnessConfig.Caches, err = cfg.CacheConfigs()
		if err != nil {
			return err
		}
	}

	harnessConfig.Output = cmd.OutOrStdout()
	harnessConfig.Verbose = o.verbose
	harnessConfig.Parallelism = o.parallel

	harness := benchmarks.NewHarness(harnessConfig)
	if o.core {
		harness.AddPatterns(benchmarks.GetCorePatterns())
	} else {
		harness.AddPatterns(benchmarks.GetPatterns())
	}

	logrus.WithField("caches", len(harnessConfig.Caches)).Info("running benchmarks")

	rows, err := harness.RunAll()
	if err != nil {
		return err
	}

	dbPath := o.resultsDB
	if dbPath == "" && cfg != nil {
		dbPath = cfg.ResultsDB
	}
	if dbPath != "" {
		if err := record(dbPath, rows); err != nil {
			return err
		}
	}

	switch {
	case o.json:
		return harness.PrintJSON(rows)
	case o.csv:
		harness.PrintCSV(rows)
	default:
		harness.PrintResults(rows)
	}

	return nil
}

func record(dbPath string, rows []benchmarks.Result) error {
	recorder, err := results.NewSQLiteRecorder(dbPath)
	if err != nil {
		return err
	}

	if err := recorder.RecordAll(rows); err != nil {
		_ = recorder.Close()
		return err
	}

	return recorder.Close()
}
