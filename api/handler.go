package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gridtrader/internal/engine"
	"gridtrader/internal/marketdata"
	"gridtrader/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	db     *pgxpool.Pool
	js     nats.JetStreamContext
	runner *engine.Runner
	pool   *engine.WorkerPool
	logger *zap.Logger
}

func NewHandler(db *pgxpool.Pool, js nats.JetStreamContext, runner *engine.Runner, pool *engine.WorkerPool, logger *zap.Logger) *Handler {
	return &Handler{
		db:     db,
		js:     js,
		runner: runner,
		pool:   pool,
		logger: logger,
	}
}

// Auth Handlers

func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	var userID int64
	err = h.db.QueryRow(c.Request.Context(),
		"INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id",
		req.Email, string(hash)).Scan(&userID)

	if err != nil {
		h.logger.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "user created", "id": userID})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID int64
	var hash string
	err := h.db.QueryRow(c.Request.Context(),
		"SELECT id, password_hash FROM users WHERE email = $1", req.Email).Scan(&userID, &hash)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := GenerateToken(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Data Handlers

func (h *Handler) GetHistoryKLines(c *gin.Context) {
	symbol := marketdata.NormalizeSymbol(c.Param("symbol"))
	period := c.DefaultQuery("period", "1m")

	rows, err := h.db.Query(c.Request.Context(),
		"SELECT symbol, exchange, open, high, low, close, volume, time FROM market_klines WHERE symbol = $1 AND period = $2 ORDER BY time DESC LIMIT 100",
		symbol, period)
	if err != nil {
		h.logger.Error("failed to query klines", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer rows.Close()

	klines := make([]model.KLine, 0)
	for rows.Next() {
		var k model.KLine
		if err := rows.Scan(&k.Symbol, &k.Exchange, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.Timestamp); err != nil {
			h.logger.Error("failed to scan kline", zap.Error(err))
			continue
		}
		k.Period = period
		klines = append(klines, k)
	}

	c.JSON(http.StatusOK, klines)
}

// GetGridLevels previews the price ladder a configuration would
// produce, without touching market data.
func (h *Handler) GetGridLevels(c *gin.Context) {
	center, err := decimal.NewFromString(c.Query("center"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid center price"})
		return
	}
	levels, err := strconv.Atoi(c.DefaultQuery("levels", "10"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level count"})
		return
	}
	rangePct, err := decimal.NewFromString(c.DefaultQuery("range_pct", "5"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid range pct"})
		return
	}
	orderSize, err := decimal.NewFromString(c.DefaultQuery("order_size", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order size"})
		return
	}

	ladder, err := engine.BuildLadder(center, levels, rangePct, orderSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ladder)
}

type backtestRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Timeframe      string          `json:"timeframe" binding:"required"`
	Levels         int             `json:"levels" binding:"required"`
	RangePct       decimal.Decimal `json:"range_pct"`
	OrderSize      decimal.Decimal `json:"order_size"`
	CenterPrice    decimal.Decimal `json:"center_price"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	StartTime      time.Time       `json:"start_time" binding:"required"`
	EndTime        time.Time       `json:"end_time" binding:"required"`
}

func (r backtestRequest) gridConfig() model.GridConfig {
	return model.GridConfig{
		Symbol:      marketdata.NormalizeSymbol(r.Symbol),
		Timeframe:   r.Timeframe,
		Levels:      r.Levels,
		RangePct:    r.RangePct,
		OrderSize:   r.OrderSize,
		CenterPrice: r.CenterPrice,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
	}
}

func (h *Handler) RunBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.runner.Run(c.Request.Context(), req.gridConfig(), req.InitialBalance, decimal.Zero)
	if err != nil {
		var cfgErr *engine.ConfigError
		var gapErr *engine.DataGapError
		switch {
		case errors.As(err, &cfgErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Error()})
		case errors.As(err, &gapErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": gapErr.Error()})
		default:
			h.logger.Error("backtest failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "backtest failed"})
		}
		return
	}

	runID := uuid.NewString()
	h.publishReport(runID, report)
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "report": report})
}

// RunBacktestAsync queues the run on the worker pool. The report
// arrives on the backtest.report.<run_id> subject when the run
// finishes; clients pick it up over the websocket gateway.
func (h *Handler) RunBacktestAsync(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()
	ok := h.pool.Submit(engine.Job{
		ID:             runID,
		Config:         req.gridConfig(),
		InitialCapital: req.InitialBalance,
	})
	if !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "backtest queue full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "report_subject": "backtest.report." + runID})
}

// PublishResult pushes a finished pool job's report to NATS. Wired as
// the pool's completion callback.
func (h *Handler) PublishResult(res engine.JobResult) {
	if res.Err != nil || res.Report == nil {
		return
	}
	h.publishReport(res.ID, res.Report)
}

func (h *Handler) publishReport(runID string, report *model.BacktestReport) {
	if h.js == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		h.logger.Error("failed to marshal report", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("backtest.report.%s", runID)
	if _, err := h.js.Publish(subject, data); err != nil {
		h.logger.Error("failed to publish report", zap.String("run_id", runID), zap.Error(err))
	}
}
