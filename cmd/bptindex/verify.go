package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bptindex/internal/btree"
)

func newVerifyCmd(root *rootOptions) *cobra.Command {
	var (
		file string
		dump bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the structural invariants of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(root)
			defer log.Sync()

			tree, err := btree.OpenWithOptions(file, btree.Options{Logger: log})
			if err != nil {
				return err
			}
			defer tree.Close()

			if err := tree.Check(); err != nil {
				return err
			}
			pages, err := tree.NumPages()
			if err != nil {
				return err
			}
			log.Info("dataset verified",
				zap.String("file", file),
				zap.Uint32("root", tree.RootPage()),
				zap.Uint32("pages", pages))
			cmd.Printf("ok: root=%d pages=%d\n", tree.RootPage(), pages)

			if dump {
				return tree.Dump(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "dataset.db", "dataset file")
	cmd.Flags().BoolVarP(&dump, "dump", "v", false, "dump the tree structure")
	return cmd
}
