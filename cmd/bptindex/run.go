package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bptindex/internal/btree"
	"bptindex/internal/driver"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		file      string
		input     string
		cacheSize int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute insert/find/delete commands against a dataset",
		Long:  "Reads whitespace-separated insert/find/delete records from the input stream until EOF and prints query results to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(root)
			defer log.Sync()

			var in io.Reader = os.Stdin
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return errors.Wrapf(err, "open input %s", input)
				}
				defer f.Close()
				in = f
			}

			tree, err := btree.OpenWithOptions(file, btree.Options{
				CacheCapacity: cacheSize,
				Logger:        log,
			})
			if err != nil {
				return err
			}
			defer tree.Close()

			log.Info("dataset opened", zap.String("file", file))
			return driver.New(tree, in, cmd.OutOrStdout(), log).Run()
		},
	}
	cmd.Flags().StringVar(&file, "file", "dataset.db", "dataset file")
	cmd.Flags().StringVar(&input, "input", "", "command file (default stdin)")
	cmd.Flags().IntVar(&cacheSize, "cache", 0, "page cache capacity (0 = default)")
	return cmd
}
