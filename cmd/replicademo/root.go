package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Polqt/causalcrdt/telemetry"
)

var (
	logLevel    string
	development bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "replicademo",
		Short: "Exercise the causalcrdt TCSB replica protocol end to end",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	root.PersistentFlags().BoolVar(&development, "dev", true, "use zap's human-readable console encoder")

	root.AddCommand(newRunCmd())
	return root
}

func buildLogger() (*zap.Logger, error) {
	return telemetry.NewLogger(logLevel, development)
}
