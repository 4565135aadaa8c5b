package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/distlbfgs/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <run-id>",
	Short: "Print the loss trace of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	runID := args[0]

	reader, err := store.NewTraceReader(dataDir, runID)
	if err != nil {
		return err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITERATION\tLOSS")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%.10g\n", e.Iteration, e.Loss)
	}
	return w.Flush()
}
