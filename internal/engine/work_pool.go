package engine

import (
	"context"

	"gridtrader/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Job is one backtest request queued for a pool worker. Jobs are
// independent: each gets its own runner state, so runs never share
// balances or armed levels.
type Job struct {
	ID             string
	Config         model.GridConfig
	InitialCapital decimal.Decimal
	InitialHolding decimal.Decimal
}

// JobResult pairs a finished job with its report or failure.
type JobResult struct {
	ID     string
	Report *model.BacktestReport
	Err    error
}

type WorkerPool struct {
	jobQueue    chan Job
	workerCount int
	runner      *Runner
	onDone      func(JobResult)
	logger      *zap.Logger
}

func NewWorkerPool(workerCount int, bufferSize int, runner *Runner, onDone func(JobResult), logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		jobQueue:    make(chan Job, bufferSize),
		workerCount: workerCount,
		runner:      runner,
		onDone:      onDone,
		logger:      logger,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(ctx, i)
	}
	p.logger.Info("started worker pool", zap.Int("workers", p.workerCount))
}

// Submit enqueues a job without blocking. A full queue rejects the job
// so callers can surface backpressure instead of hanging a request.
func (p *WorkerPool) Submit(job Job) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.logger.Warn("worker pool job queue full, rejecting job", zap.String("job_id", job.ID))
		return false
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.process(ctx, id, job)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, workerID int, job Job) {
	p.logger.Debug("worker picked up backtest",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID),
		zap.String("symbol", job.Config.Symbol),
	)
	report, err := p.runner.Run(ctx, job.Config, job.InitialCapital, job.InitialHolding)
	if err != nil {
		p.logger.Error("backtest job failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	if p.onDone != nil {
		p.onDone(JobResult{ID: job.ID, Report: report, Err: err})
	}
}
