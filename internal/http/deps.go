package http

import (
	"context"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/orders"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Catalog is satisfied by *catalog.Service.
type Catalog interface {
	Packages(ctx context.Context, location, typ string) ([]esimaccess.Package, error)
	Package(ctx context.Context, code string) (*esimaccess.Package, error)
	Regions(ctx context.Context) ([]esimaccess.Location, error)
}

// Orders is satisfied by *orders.Service.
type Orders interface {
	Enqueue(ctx context.Context, customerID int64, in orders.OrderInput) (model.Order, error)
	Get(ctx context.Context, customerID int64, id string) (*model.Order, error)
	List(ctx context.Context, customerID int64, limit, offset int) ([]model.Order, error)
	Topup(ctx context.Context, customerID int64, esimTranNo, packageCode string) (*esimaccess.TopupResult, error)
}

// Lifecycle is satisfied by *esimaccess.ProfilesService.
type Lifecycle interface {
	Cancel(ctx context.Context, a esimaccess.ProfileAction) error
	Suspend(ctx context.Context, a esimaccess.ProfileAction) error
	Unsuspend(ctx context.Context, a esimaccess.ProfileAction) error
	Revoke(ctx context.Context, a esimaccess.ProfileAction) error
}

// Querier is satisfied by *esimaccess.UsageService.
type Querier interface {
	QueryProfiles(ctx context.Context, p esimaccess.QueryParams) (*esimaccess.ProfileList, error)
	GetUsage(ctx context.Context, esimTranNoList []string) (*esimaccess.UsageList, error)
}

// Prober is satisfied by *esimaccess.AccountService.
type Prober interface {
	Balance(ctx context.Context) (*esimaccess.Balance, error)
}

// Deps is everything the router needs. NewServer builds it from live
// connections; tests fill it with fakes.
type Deps struct {
	DB        *sqlx.DB
	Redis     *redis.Client
	Customers repository.CustomersRepository
	Profiles  repository.ProfilesRepository
	Wallet    repository.WalletRepository
	Ledger    repository.LedgerRepository
	Usage     repository.CHUsageRepository

	Catalog   Catalog
	Orders    Orders
	Lifecycle Lifecycle
	Query     Querier
	Prober    Prober

	DefaultRPS int
}
