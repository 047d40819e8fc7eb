package main

import (
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/config"
)

type rootOptions struct {
	logLevel   string
	cpuProfile string
	profile    *os.File
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cachesim",
		Short: "Trace-driven cache performance model",
		Long: "cachesim replays memory access traces through direct-mapped, " +
			"set-associative and fully-associative caches and reports hit " +
			"ratios, three-Cs miss breakdowns and average memory access time.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setUp()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.tearDown()
		},
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log", "warn",
		"Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVar(&opts.cpuProfile, "cpuprofile", "",
		"Write a CPU profile to this file")

	cmd.AddCommand(
		newRunCmd(),
		newBenchCmd(),
		newConvertCmd(),
		newShowCmd(),
	)

	return cmd
}

func (o *rootOptions) setUp() error {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.logLevel, err)
	}
	logrus.SetLevel(level)

	if o.cpuProfile == "" {
		return nil
	}

	f, err := os.Create(o.cpuProfile)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}
	o.profile = f

	return nil
}

func (o *rootOptions) tearDown() error {
	if o.profile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	err := o.profile.Close()
	o.profile = nil

	return err
}

// loadConfig reads the configuration file when one is given. The file's log
// level applies unless --log was set explicitly.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if path == "" {
		return nil, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("log") {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q in %s: %w",
				cfg.LogLevel, path, err)
		}
		logrus.SetLevel(level)
	}

	return cfg, nil
}
