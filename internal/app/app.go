package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridtrader/api"
	"gridtrader/internal/config"
	"gridtrader/internal/engine"
	"gridtrader/internal/infrastructure"
	"gridtrader/internal/marketdata"
	"gridtrader/internal/processor"
	"gridtrader/internal/push"
	"gridtrader/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	NC         *nats.Conn
	JS         nats.JetStreamContext
	Gateway    *push.Gateway
	Runner     *engine.Runner
	Pool       *engine.WorkerPool
	HTTPServer *http.Server

	handler *api.Handler
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init()
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Backtest engine
	a.Runner = engine.NewRunner(
		a.barSource(),
		time.Duration(a.Config.ChunkDays)*24*time.Hour,
		decimal.NewFromFloat(a.Config.StopLossPct),
		a.Logger,
	)
	a.Pool = engine.NewWorkerPool(a.Config.BacktestWorker, 64, a.Runner,
		func(res engine.JobResult) { a.handler.PublishResult(res) }, a.Logger)

	// 4. Services
	api.InitAuth(a.Config.JWTSecret)
	a.Gateway = push.NewGateway(js, a.Logger)
	a.handler = api.NewHandler(a.DB, a.JS, a.Runner, a.Pool, a.Logger)

	return nil
}

// barSource picks where backtests read history from: the Alpaca data
// API when credentials are configured, otherwise the local kline
// store.
func (a *App) barSource() engine.BarSource {
	if a.Config.AlpacaKey != "" && a.Config.AlpacaSecret != "" {
		a.Logger.Info("using alpaca bar source")
		return marketdata.NewAlpacaSource(
			a.Config.AlpacaKey, a.Config.AlpacaSecret, a.Config.AlpacaDataURL, a.Logger)
	}
	a.Logger.Info("using database bar source")
	return engine.NewDataLoader(a.DB, a.Logger)
}

// Run starts the application services and the HTTP server
func (a *App) Run(ctx context.Context) error {
	// Persistence
	klineSaver := storage.NewKlineSaver(a.DB, a.Logger)
	go klineSaver.Run(ctx)
	a.startPersistenceService(klineSaver)

	// Stream resampler
	resampler := processor.NewResampler(a.JS, a.Logger)
	if err := resampler.Run(ctx); err != nil {
		return fmt.Errorf("failed to start resampler: %w", err)
	}

	// Live ingestion and backtest workers
	a.startIngestionWorker(ctx)
	a.Pool.Start(ctx)

	// HTTP server
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.DB.Close()

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/register", a.handler.Register)
		v1.POST("/login", a.handler.Login)
		v1.GET("/klines/:symbol", a.handler.GetHistoryKLines)
		v1.GET("/grid/levels", a.handler.GetGridLevels)
	}

	protected := r.Group("/api/v1")
	protected.Use(api.AuthMiddleware())
	{
		protected.POST("/backtest", a.handler.RunBacktest)
		protected.POST("/backtest/async", a.handler.RunBacktestAsync)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.Gateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
