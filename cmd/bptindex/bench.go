package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"bptindex/internal/bench"
	"bptindex/internal/btree"
)

func newBenchCmd(root *rootOptions) *cobra.Command {
	var (
		n        int
		readPct  int
		seed     int64
		out      string
		plotFile string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the B+ tree against a pebble baseline",
		Long:  "Runs identical load/lookup/mixed/delete workloads against the B+ tree index and a pebble store in a temporary directory, then reports per-op latency as CSV.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(root)
			defer log.Sync()

			dir, err := os.MkdirTemp("", "bptindex-bench-")
			if err != nil {
				return errors.Wrap(err, "create bench dir")
			}
			defer os.RemoveAll(dir)

			tree, err := btree.OpenWithOptions(filepath.Join(dir, "bench.db"), btree.Options{Logger: log})
			if err != nil {
				return err
			}
			pb, err := bench.OpenPebble(filepath.Join(dir, "pebble"))
			if err != nil {
				tree.Close()
				return err
			}

			backends := []bench.Backend{
				{Name: "bptree", Index: &bench.TreeIndex{Tree: tree}},
				{Name: "pebble", Index: pb},
			}
			results, err := bench.Run(bench.Config{N: n, ReadPercent: readPct, Seed: seed}, backends)
			for _, b := range backends {
				b.Index.Close()
			}
			if err != nil {
				return err
			}

			sink := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return errors.Wrapf(err, "create %s", out)
				}
				defer f.Close()
				sink = f
			}
			if err := bench.WriteCSV(sink, results); err != nil {
				return err
			}
			if plotFile != "" {
				return bench.RenderPlot(results, plotFile)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 10000, "pairs to load / ops per lookup and mixed phase")
	cmd.Flags().IntVar(&readPct, "read-pct", 90, "lookup share of the mixed phase")
	cmd.Flags().Int64Var(&seed, "seed", 1, "workload random seed")
	cmd.Flags().StringVar(&out, "out", "", "CSV output file (default stdout)")
	cmd.Flags().StringVar(&plotFile, "plot", "", "render a bar chart to this file")
	return cmd
}
