package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/distlbfgs/internal/data"
	"github.com/cwbudde/distlbfgs/internal/engine"
	"github.com/cwbudde/distlbfgs/internal/metrics"
	"github.com/cwbudde/distlbfgs/internal/opt"
	"github.com/cwbudde/distlbfgs/internal/store"
	"github.com/cwbudde/distlbfgs/internal/tensor"
)

var (
	trainDataPath  string
	numFeatures    int
	partitions     int
	parallelism    int
	maxAttempts    int
	gradientName   string
	updaterName    string
	numCorrections int
	convergenceTol float64
	maxIterations  int
	regParam       float64
	initFrom       string
	metricsAddr    string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a model with L-BFGS",
	Long: `Loads a LIBSVM dataset, splits it into partitions and minimizes the
regularized average loss with L-BFGS. The model and its loss trace are saved
under <data-dir>/runs/<run-id>/.`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainDataPath, "data", "", "LIBSVM dataset path (required)")
	trainCmd.Flags().IntVar(&numFeatures, "num-features", 0, "Number of features (0 = largest index in the data)")
	trainCmd.Flags().IntVar(&partitions, "partitions", 4, "Number of data partitions")
	trainCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Partition tasks run at once (0 = number of CPUs)")
	trainCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempts per partition task before failing (0 = engine default)")
	trainCmd.Flags().StringVar(&gradientName, "gradient", "logistic", "Loss: leastsquares, logistic, hinge")
	trainCmd.Flags().StringVar(&updaterName, "updater", "l2", "Regularizer: simple, l2, l1")
	trainCmd.Flags().IntVar(&numCorrections, "corrections", opt.DefaultNumCorrections, "L-BFGS corrections kept")
	trainCmd.Flags().Float64Var(&convergenceTol, "tol", opt.DefaultConvergenceTol, "Convergence tolerance")
	trainCmd.Flags().IntVar(&maxIterations, "iters", opt.DefaultMaxNumIterations, "Max iterations")
	trainCmd.Flags().Float64Var(&regParam, "reg", opt.DefaultRegParam, "Regularization parameter")
	trainCmd.Flags().StringVar(&initFrom, "init-from", "", "Start from the weights of a saved run")
	trainCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during training")

	trainCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	gradient, err := opt.GradientByName(gradientName)
	if err != nil {
		return err
	}
	updater, err := opt.UpdaterByName(updaterName)
	if err != nil {
		return err
	}

	ds, dim, err := loadDataset(trainDataPath, numFeatures, partitions)
	if err != nil {
		return err
	}

	runCfg := store.RunConfig{
		DataPath:       trainDataPath,
		NumFeatures:    dim,
		Partitions:     partitions,
		Gradient:       gradientName,
		Updater:        updaterName,
		NumCorrections: numCorrections,
		ConvergenceTol: convergenceTol,
		MaxIterations:  maxIterations,
		RegParam:       regParam,
		InitFrom:       initFrom,
	}

	modelStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create model store: %w", err)
	}

	initial, err := initialWeights(modelStore, runCfg)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr)
		defer stop()
	}

	runID := uuid.NewString()
	slog.Info("Starting training", "run_id", runID, "data", trainDataPath, "gradient", gradientName, "updater", updaterName)

	start := time.Now()
	res, err := opt.RunLBFGSWithResult(ctx, ds, gradient, updater,
		numCorrections, convergenceTol, maxIterations, regParam, initial)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	elapsed := time.Since(start)

	model := store.NewModel(runID, res.Weights.Values(), res.LossHistory, res.Iterations, res.Reason.String(), runCfg)
	if err := modelStore.SaveModel(runID, model); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	trace, err := store.NewTraceWriter(dataDir, runID, false)
	if err != nil {
		return fmt.Errorf("failed to create trace: %w", err)
	}
	err = trace.WriteHistory(res.LossHistory, model.Timestamp)
	if closeErr := trace.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// The model is already saved; only the partial trace is removed.
		if delErr := store.DeleteTrace(dataDir, runID); delErr != nil {
			slog.Warn("Failed to remove partial trace", "run_id", runID, "error", delErr)
		}
		return fmt.Errorf("failed to write trace: %w", err)
	}

	slog.Info("Training complete",
		"run_id", runID,
		"elapsed", elapsed,
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
		"initial_loss", res.LossHistory[0],
		"final_loss", model.FinalLoss,
		"reason", model.Reason,
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: loss %.6g -> %.6g after %d iterations (%s)\n",
		runID, res.LossHistory[0], model.FinalLoss, res.Iterations, model.Reason)
	return nil
}

// loadDataset reads a LIBSVM file and partitions it. It returns the feature
// count, which is inferred from the data when numFeatures <= 0.
func loadDataset(path string, numFeatures, numPartitions int) (*engine.Dataset[data.LabeledPoint], int, error) {
	points, err := data.LoadLibSVMFile(path, numFeatures)
	if err != nil {
		return nil, 0, err
	}
	if len(points) == 0 {
		return nil, 0, fmt.Errorf("%s: %w", path, opt.ErrEmptyDataset)
	}
	dim := points[0].Features.Len()
	if dim == 0 {
		return nil, 0, fmt.Errorf("%s: no features", path)
	}

	cfg := engine.DefaultConfig()
	if parallelism > 0 {
		cfg.Parallelism = parallelism
	}
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}

	ds, err := engine.Parallelize(points, numPartitions, cfg)
	if err != nil {
		return nil, 0, err
	}

	slog.Info("Loaded dataset", "path", path, "examples", len(points), "features", dim, "partitions", ds.NumPartitions())
	return ds, dim, nil
}

// initialWeights returns zeros, or the weights of the run named in
// cfg.InitFrom when it is compatible with cfg.
func initialWeights(s store.Store, cfg store.RunConfig) (*tensor.Tensor, error) {
	if cfg.InitFrom == "" {
		return tensor.Zeros(cfg.NumFeatures), nil
	}

	model, err := s.LoadModel(cfg.InitFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to load warm start model: %w", err)
	}
	if err := model.IsCompatible(cfg); err != nil {
		return nil, fmt.Errorf("cannot warm start from %s: %w", cfg.InitFrom, err)
	}

	slog.Info("Warm starting", "from", cfg.InitFrom, "loss", model.FinalLoss)
	return tensor.FromSlice(model.Weights), nil
}

// serveMetrics serves /metrics on addr until the returned function is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}
