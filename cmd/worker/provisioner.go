package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/db"
	"github.com/jmehdipour/esim-gateway/internal/kafka"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/orders"
	"github.com/jmehdipour/esim-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var provisionerCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Place queued orders with the eSIM provider",
	RunE:  runProvisioner,
}

func runProvisioner(cmd *cobra.Command, args []string) error {
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

	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "esimgw-provisioner"
	}

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          orders.OrdersKafkaTopic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewProvisioner(
		dbx,
		consumer,
		repository.NewOrdersRepository(dbx),
		repository.NewWalletRepository(),
		repository.NewLedgerRepository(),
		client.Orders,
		client.Usage,
		log,
	)

	// tune knobs
	if cfg.Provisioner.WorkerCount > 0 {
		w.Workers = cfg.Provisioner.WorkerCount
	}
	if cfg.Provisioner.BatchSize > 0 {
		w.BatchSize = cfg.Provisioner.BatchSize
	}
	if cfg.Provisioner.BatchWait > 0 {
		w.BatchWait = cfg.Provisioner.BatchWait
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cmd, log)

	log.Info("provisioner started",
		zap.String("topic", orders.OrdersKafkaTopic),
		zap.String("group", groupID),
		zap.Int("workers", w.Workers),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait))

	err = w.Run(ctx)
	log.Info("provisioner stopped", zap.Int64("lag", consumer.Lag()))
	return err
}
