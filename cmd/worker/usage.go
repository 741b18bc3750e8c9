package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/esim-gateway/internal/db"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Sync issued eSIMs and poll their data usage into ClickHouse",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().Bool("once", false, "run a single cycle and exit")
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, log, client, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dbx, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	p := &worker.UsagePoller{
		Upstream:  client.Usage,
		Orders:    repository.NewOrdersRepository(dbx),
		Profiles:  repository.NewProfilesRepository(dbx),
		Snapshots: repository.NewCHUsageRepository(chDB),
		Log:       log,
		Interval:  cfg.Usage.PollInterval,
		BatchSize: cfg.Usage.BatchSize,
		PageSize:  cfg.Usage.PageSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once, _ := cmd.Flags().GetBool("once"); once {
		p.Tick(ctx)
		return nil
	}

	serveMetrics(ctx, cmd, log)
	log.Info("usage poller started",
		zap.Duration("interval", cfg.Usage.PollInterval),
		zap.Int("batch_size", cfg.Usage.BatchSize))
	return p.Run(ctx)
}
