package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_runs_total",
		Help: "Completed backtest runs",
	}, []string{"symbol"})

	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_duration_seconds",
		Help:    "Wall time of a full backtest run",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	BarsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_bars_processed_total",
		Help: "Bars consumed by the simulator",
	})

	OrderFills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_order_fills_total",
		Help: "Simulated order fills by side",
	}, []string{"side"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Active WebSocket connections",
	})

	DBInsertRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_insert_total",
		Help: "Rows inserted into the database",
	}, []string{"table"})
)
