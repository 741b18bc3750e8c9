package db

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/esim-gateway/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the transactional store (customers, wallet,
// orders, esim_profiles, outbox). The DSN needs parseTime=true.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}
	return open("mysql", cfg, 5*time.Second)
}
