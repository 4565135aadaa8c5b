package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/distlbfgs/internal/opt"
	"github.com/cwbudde/distlbfgs/internal/store"
	"github.com/cwbudde/distlbfgs/internal/tensor"
)

var (
	evalDataPath   string
	evalPartitions int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <run-id>",
	Short: "Compute the average loss of a saved model on a dataset",
	Long: `Loads the model of a run and reports its average loss on a LIBSVM
dataset, without the regularization term.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalDataPath, "data", "", "LIBSVM dataset path (required)")
	evaluateCmd.Flags().IntVar(&evalPartitions, "partitions", 4, "Number of data partitions")
	evaluateCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	runID := args[0]

	modelStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create model store: %w", err)
	}
	model, err := modelStore.LoadModel(runID)
	if err != nil {
		return err
	}

	gradient, err := opt.GradientByName(model.Config.Gradient)
	if err != nil {
		return err
	}

	ds, _, err := loadDataset(evalDataPath, model.Config.NumFeatures, evalPartitions)
	if err != nil {
		return err
	}
	n, err := ds.Count(cmd.Context())
	if err != nil {
		return err
	}

	costFun, err := opt.NewCostFun(ds, gradient, opt.SimpleUpdater{}, 0, n)
	if err != nil {
		return err
	}
	loss, _, err := costFun.Calculate(cmd.Context(), tensor.FromSlice(model.Weights))
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: average %s loss %.6g over %d examples\n", runID, model.Config.Gradient, loss, n)
	return nil
}
