package http

import (
	"context"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/config"
	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/http/middleware"
	"github.com/jmehdipour/esim-gateway/internal/metrics"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/catalog"
	"github.com/jmehdipour/esim-gateway/internal/service/orders"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, client *esimaccess.Client, logger *zap.Logger) *Server {
	// repos (MySQL)
	customersRepo := repository.NewCustomersRepository(mysqlDB)
	ordersRepo := repository.NewOrdersRepository(mysqlDB)
	profilesRepo := repository.NewProfilesRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	walletRepo := repository.NewWalletRepository()
	ledgerRepo := repository.NewLedgerRepository()

	// repos (ClickHouse)
	chUsageRepo := repository.NewCHUsageRepository(clickhouseDB)

	// services
	catalogSvc := catalog.New(
		client.Packages,
		catalog.NewRedisCache(rds, ""),
		cfg.Catalog.CacheTTL,
		logger.Named("catalog"),
	)
	ordersSvc := orders.New(
		mysqlDB,
		ordersRepo,
		outboxRepo,
		walletRepo,
		ledgerRepo,
		catalogSvc,
		client.Topup,
		logger.Named("orders"),
	)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e := newRouter(Deps{
		DB:         mysqlDB,
		Redis:      rds,
		Customers:  customersRepo,
		Profiles:   profilesRepo,
		Wallet:     walletRepo,
		Ledger:     ledgerRepo,
		Usage:      chUsageRepo,
		Catalog:    catalogSvc,
		Orders:     ordersSvc,
		Lifecycle:  client.Profiles,
		Query:      client.Usage,
		Prober:     client.Account,
		DefaultRPS: cfg.RateLimit.RPS,
	}, logger)

	return &Server{e: e, log: logger}
}

func newRouter(d Deps, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.INFO)
	e.Use(echoMid.Recover(), requestLogger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", healthzHandler)
	e.GET("/readyz", readyzHandler(d.Prober))

	// middlewares
	authMW := middleware.APIKeyMiddleware(d.Customers)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		DefaultRPS:     d.DefaultRPS,
		KeyPrefix:      "esimgw:rl:cust:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)

	v1.GET("/packages", listPackagesHandler(d.Catalog))
	v1.GET("/packages/:code", getPackageHandler(d.Catalog))
	v1.GET("/regions", listRegionsHandler(d.Catalog))

	v1.POST("/orders", createOrderHandler(d.Orders))
	v1.GET("/orders", listOrdersHandler(d.Orders))
	v1.GET("/orders/:id", getOrderHandler(d.Orders, d.Profiles))

	v1.GET("/esims", listESIMsHandler(d.Orders, d.Query))
	v1.GET("/esims/:tranNo/usage", esimUsageHandler(d.Profiles, d.Query))
	v1.POST("/esims/:tranNo/cancel", esimActionHandler("cancel", d.Profiles, d.Query, d.Lifecycle.Cancel))
	v1.POST("/esims/:tranNo/suspend", esimActionHandler("suspend", d.Profiles, d.Query, d.Lifecycle.Suspend))
	v1.POST("/esims/:tranNo/unsuspend", esimActionHandler("unsuspend", d.Profiles, d.Query, d.Lifecycle.Unsuspend))
	v1.POST("/esims/:tranNo/revoke", esimActionHandler("revoke", d.Profiles, d.Query, d.Lifecycle.Revoke))
	v1.POST("/esims/:tranNo/topup", esimTopupHandler(d.Profiles, d.Orders))

	v1.GET("/reports/usage", usageReportHandler(d.Usage))

	v1.GET("/wallet", walletHandler(d.DB, d.Wallet))
	v1.POST("/wallet/topup", TopupHandler(d.DB, d.Wallet, d.Ledger))

	return e
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if id, ok := middleware.CustomerIDFromCtx(c); ok {
				fields = append(fields, zap.Int64("customer_id", id))
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func (s *Server) Start(addr string) error {
	s.log.Info("http listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
