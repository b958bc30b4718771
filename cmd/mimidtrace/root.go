package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mimidtrace",
	Short: "Mine a context-free grammar from a parser binary by tracing it under a debugger",
	Long: `mimidtrace drives a parser executable under gdb, attributing input
bytes to call frames via watchpoints on the input buffer, and induces a
grammar from the resulting parse trees.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}
	return nil
}
