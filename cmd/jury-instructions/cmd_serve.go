package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/httpapi"
	"github.com/joelkehle/jury-instructions/internal/pipeline"
	"github.com/joelkehle/jury-instructions/internal/report"
	"github.com/joelkehle/jury-instructions/internal/telemetry"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	snap, err := st.Snapshot(ctx)
	if err != nil {
		return err
	}
	exec, err := newExecutor(ctx, cfg.Oracle, logger)
	if err != nil {
		return err
	}
	p := pipeline.New(exec, snap,
		pipeline.WithWindowSize(cfg.Pipeline.WindowSize),
		pipeline.WithConcurrency(cfg.Pipeline.Concurrency),
		pipeline.WithLogger(logger.Named("pipeline")),
	)
	api := httpapi.NewServer(ctx, p, st,
		httpapi.WithPDFRenderer(report.NewPDFRenderer()),
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithRunTimeout(cfg.RunTimeout()),
	)

	srv := &http.Server{
		Addr:              serveFlags.addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", serveFlags.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}
	api.Wait()
	return nil
}
