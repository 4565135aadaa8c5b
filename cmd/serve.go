package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/distlbfgs/internal/server"
	"github.com/cwbudde/distlbfgs/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve saved runs and metrics over HTTP",
	Long: `Starts a read-only HTTP API:
  GET /api/v1/runs             list runs
  GET /api/v1/runs/:id         model of a run
  GET /api/v1/runs/:id/trace   loss trace of a run
  GET /metrics                 Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	modelStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create model store: %w", err)
	}

	srv := server.NewServer(serveAddr, modelStore, dataDir)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
