package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/config"
	"github.com/jmehdipour/esim-gateway/internal/db"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

// demoCredit is 100.00 in provider price units (1/10000).
const demoCredit = 1_000_000

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo resellers and wallet credit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		fmt.Println(">> Seeding demo resellers...")

		if err := seedCustomers(sqlDB); err != nil {
			return err
		}
		if err := creditWallets(cmd.Context(), sqlDB); err != nil {
			return err
		}

		fmt.Println(">> Seed completed")
		return nil
	},
}

var demoCustomers = []model.Customer{
	{Name: "Roamly Travel", APIKey: "11111111111111111111111111111111", Status: model.CustomerActive, RateLimitRPS: intptr(20)},
	{Name: "Nomad Data Co", APIKey: "22222222222222222222222222222222", Status: model.CustomerActive, RateLimitRPS: intptr(50)},
	{Name: "Beta Testers", APIKey: "33333333333333333333333333333333", Status: model.CustomerActive, RateLimitRPS: intptr(5)},
	{Name: "Suspended Inc", APIKey: "44444444444444444444444444444444", Status: model.CustomerSuspended},
}

// seedCustomers upserts the demo resellers by api_key (idempotent).
func seedCustomers(dbx *sqlx.DB) error {
	const q = `
INSERT INTO customers
    (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name           = VALUES(name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, c := range demoCustomers {
		if _, err := tx.Exec(q, c.Name, c.APIKey, c.Status, c.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert customer %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit customers: %w", err)
	}
	return nil
}

// creditWallets gives every active demo reseller demoCredit once, through
// the same ledger path as POST /v1/wallet/topup.
func creditWallets(ctx context.Context, dbx *sqlx.DB) error {
	customers := repository.NewCustomersRepository(dbx)
	wallet := repository.NewWalletRepository()
	ledger := repository.NewLedgerRepository()

	for _, dc := range demoCustomers {
		if dc.Status != model.CustomerActive {
			continue
		}
		c, err := customers.GetByAPIKey(ctx, dc.APIKey)
		if err != nil {
			return fmt.Errorf("lookup customer %q: %w", dc.Name, err)
		}
		if c == nil {
			return fmt.Errorf("customer %q missing after seed", dc.Name)
		}

		tx, err := dbx.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		idem := fmt.Sprintf("seed-%d", c.ID)
		err = func() error {
			defer func() { _ = tx.Rollback() }()
			if err := wallet.UpsertAccount(ctx, tx, c.ID); err != nil {
				return err
			}
			exists, err := ledger.ExistsByIdem(ctx, tx, idem)
			if err != nil || exists {
				return err
			}
			if err := ledger.InsertTopup(ctx, tx, c.ID, demoCredit, idem); err != nil {
				return err
			}
			if err := wallet.Topup(ctx, tx, c.ID, demoCredit); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if err != nil {
			return fmt.Errorf("credit wallet %q: %w", dc.Name, err)
		}
	}
	return nil
}

func intptr(i int) *int { return &i }
