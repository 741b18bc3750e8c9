package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/config"
	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/logger"
	"github.com/jmehdipour/esim-gateway/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	cmd.PersistentFlags().String("metrics-addr", "", "serve /metrics on this address (empty = off)")

	// attach subcommands
	cmd.AddCommand(provisionerCmd)
	cmd.AddCommand(usageCmd)

	return cmd
}

// bootstrap loads config, sets up logging and metrics and builds the
// provider client shared by every worker.
func bootstrap(cmd *cobra.Command) (config.Config, *zap.Logger, *esimaccess.Client, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateESIM(); err != nil {
		return config.Config{}, nil, nil, err
	}

	log := logger.Init(cfg.Log.Level).Named(cmd.Name())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	client, err := esimaccess.New(cfg.ESIM.ClientConfig(), log, metrics.Upstream{})
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("esim client: %w", err)
	}
	return cfg, log, client, nil
}

// serveMetrics exposes the default registry until ctx is done.
func serveMetrics(ctx context.Context, cmd *cobra.Command, log *zap.Logger) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server exited", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
