package db

import (
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmehdipour/esim-gateway/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the analytics store holding usage snapshots.
// e.g. clickhouse://default:@localhost:9000/esimgw?dial_timeout=5s&compress=true
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty ClickHouse DSN")
	}
	return open("clickhouse", cfg, 3*time.Second)
}
