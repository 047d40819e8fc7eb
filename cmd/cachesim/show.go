package main

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/benchmarks"
	"github.com/sarchlab/cachemodel/results"
)

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <results.sqlite3>",
		Short: "Print results recorded by run or bench",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := results.Load(args[0])
			if err != nil {
				return err
			}

			harness := benchmarks.NewHarness(benchmarks.HarnessConfig{
				Output: cmd.OutOrStdout(),
			})
			if asJSON {
				return harness.PrintJSON(rows)
			}
			harness.PrintCSV(rows)

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results in JSON format")

	return cmd
}
