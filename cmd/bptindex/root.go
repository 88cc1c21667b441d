package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.1.0"

type rootOptions struct {
	debug   bool
	logFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bptindex",
		Short:         "Disk-resident B+ tree index",
		Long:          "bptindex maintains a single-file B+ tree index of fixed-size keys mapped to composite values.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write logs to this file (rotated) instead of stderr")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newBenchCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// newLogger builds the process logger: JSON to stderr, or to a rotated
// file when --log-file is set.
func newLogger(opts *rootOptions) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.debug {
		level = zapcore.DebugLevel
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if opts.logFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		})
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, level)
	return zap.New(core)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("bptindex " + version)
		},
	}
}
