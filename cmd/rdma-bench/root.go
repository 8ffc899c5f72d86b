package main

import (
	"github.com/spf13/cobra"
)

var rootFlags struct {
	adapter uint32
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:           "rdma-bench",
	Short:         "Benchmark memory transfers between two hosts over a low-latency interconnect",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().Uint32Var(&rootFlags.adapter, "adapter", 0, "interconnect adapter number")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.verbose, "debug", false, "enable debug logging")
}
