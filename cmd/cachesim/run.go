package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/benchmarks"
	"github.com/sarchlab/cachemodel/config"
	"github.com/sarchlab/cachemodel/loader"
	"github.com/sarchlab/cachemodel/results"
	"github.com/sarchlab/cachemodel/timing/cache"
)

type runOptions struct {
	configPath    string
	preset        string
	spec          config.CacheSpec
	format        string
	stream        string
	traceAccesses bool
	resultsDB     string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <trace>",
		Short: "Replay a trace through one or more caches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML or JSON file describing the caches")
	f.StringVar(&opts.preset, "preset", "", "Use a preset cache (l1i, l1d, l2)")
	f.StringVar(&opts.spec.Name, "name", "", "Cache name")
	f.IntVar(&opts.spec.SizeKiB, "size-kib", 4, "Cache size in KiB")
	f.IntVar(&opts.spec.LineBytes, "line", 64, "Cache line size in bytes")
	f.IntVar(&opts.spec.Ways, "ways", 1, "Associativity (1 is direct-mapped)")
	f.BoolVar(&opts.spec.FullyAssociative, "fully-associative", false, "Use a single set")
	f.StringVar(&opts.spec.Policy, "policy", "", "Replacement policy (NONE, RANDOM, FIFO, LRU, NMRU, PLRU)")
	f.IntVar(&opts.spec.AddressWidth, "address-width", cache.DefaultAddressWidth, "Address width in bits")
	f.Uint64Var(&opts.spec.HitLatency, "hit-latency", 1, "Hit latency in cycles")
	f.Uint64Var(&opts.spec.MissPenalty, "miss-penalty", 10, "Miss penalty in cycles")
	f.Int64Var(&opts.spec.Seed, "seed", 0, "Seed for the RANDOM and NMRU policies")
	f.StringVar(&opts.format, "format", "simple", "Trace format (simple, lackey)")
	f.StringVar(&opts.stream, "stream", "data", "Lackey stream to replay (instruction, data)")
	f.BoolVar(&opts.traceAccesses, "trace-accesses", false, "Log every access at info level")
	f.StringVar(&opts.resultsDB, "results", "", "Record results in this SQLite database")
	cmd.MarkFlagsMutuallyExclusive("config", "preset")

	return cmd
}

func presetConfig(name string) (cache.Config, error) {
	switch strings.ToLower(name) {
	case "l1i":
		return cache.DefaultL1IConfig(), nil
	case "l1d":
		return cache.DefaultL1DConfig(), nil
	case "l2":
		return cache.DefaultL2Config(), nil
	default:
		return cache.Config{}, fmt.Errorf("unknown preset %q", name)
	}
}

func (o *runOptions) run(cmd *cobra.Command, tracePath string) error {
	configs, resultsDB, err := o.caches(cmd)
	if err != nil {
		return err
	}

	accesses, err := o.loadTrace(tracePath)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"trace":    tracePath,
		"accesses": len(accesses),
	}).Info("trace loaded")

	dbPath := o.resultsDB
	if dbPath == "" {
		dbPath = resultsDB
	}

	var recorder *results.SQLiteRecorder
	if dbPath != "" {
		recorder, err = results.NewSQLiteRecorder(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = recorder.Close() }()
	}

	out := cmd.OutOrStdout()
	for _, cc := range configs {
		result, err := o.replay(cc, tracePath, accesses)
		if err != nil {
			return err
		}

		if err := result.Report.Write(out); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out)

		if recorder != nil {
			if err := recorder.Record(result); err != nil {
				return err
			}
		}
	}

	if recorder != nil {
		return recorder.Close()
	}

	return nil
}

// caches resolves the caches to simulate from --preset, --config or the
// geometry flags, in that order. It also returns the results database named
// by the config file, if any.
func (o *runOptions) caches(cmd *cobra.Command) ([]cache.Config, string, error) {
	if o.preset != "" {
		cc, err := presetConfig(o.preset)
		if err != nil {
			return nil, "", err
		}
		return []cache.Config{cc}, "", nil
	}

	cfg, err := loadConfig(cmd, o.configPath)
	if err != nil {
		return nil, "", err
	}
	if cfg == nil {
		cfg, err = config.FromSpecs(o.spec)
		if err != nil {
			return nil, "", err
		}
	}

	configs, err := cfg.CacheConfigs()
	if err != nil {
		return nil, "", err
	}
	return configs, cfg.ResultsDB, nil
}

func (o *runOptions) loadTrace(path string) ([]cache.Access, error) {
	format, err := loader.ParseFormat(o.format)
	if err != nil {
		return nil, err
	}

	if format == loader.FormatSimple {
		return loader.Load(path)
	}

	trace, err := loader.LoadLackey(path)
	if err != nil {
		return nil, err
	}

	switch o.stream {
	case "instruction", "instr", "i":
		return trace.Instruction, nil
	case "data", "d":
		return trace.Data, nil
	default:
		return nil, fmt.Errorf("unknown lackey stream %q", o.stream)
	}
}

func (o *runOptions) replay(
	cc cache.Config,
	tracePath string,
	accesses []cache.Access,
) (benchmarks.Result, error) {
	opts := []cache.Option{}
	if o.traceAccesses {
		opts = append(opts, cache.WithHook(cache.NewAccessLogHook(nil)))
	}

	c, err := cache.New(cc, opts...)
	if err != nil {
		return benchmarks.Result{}, err
	}

	start := time.Now()
	if err := loader.Replay(c, accesses); err != nil {
		return benchmarks.Result{}, fmt.Errorf("cache %s: %w", c.Name(), err)
	}

	return benchmarks.NewResult(tracePath, c.Report(), time.Since(start)), nil
}
