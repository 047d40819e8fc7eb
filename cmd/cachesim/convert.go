package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/loader"
)

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <lackey-log> <instr-out> <data-out>",
		Short: "Split a valgrind lackey log into simple-format traces",
		Long: "convert reads the output of valgrind --tool=lackey " +
			"--trace-mem=yes and writes the instruction fetches and the " +
			"data accesses as two simple-format traces.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			trace, err := loader.LoadLackey(args[0])
			if err != nil {
				return err
			}

			if err := loader.SaveTrace(args[1], trace.Instruction); err != nil {
				return err
			}
			if err := loader.SaveTrace(args[2], trace.Data); err != nil {
				return err
			}

			logrus.WithFields(logrus.Fields{
				"instruction": len(trace.Instruction),
				"data":        len(trace.Data),
			}).Info("lackey log converted")

			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"%s: %d instruction accesses\n%s: %d data accesses\n",
				args[1], len(trace.Instruction), args[2], len(trace.Data))

			return nil
		},
	}
}
