package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/service"
)

// DefaultSchedule runs the reconciliation sweep daily at 09:00
const DefaultSchedule = "0 9 * * *"

// DefaultRunTimeout bounds a single sweep
const DefaultRunTimeout = 30 * time.Minute

// AutoTransitionWorker runs the auto-transition job on a cron schedule.
// Overlapping runs are skipped.
type AutoTransitionWorker struct {
	job        service.AutoTransitionJob
	schedule   string
	runTimeout time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	lastRun *service.ReconcileReport
}

// NewAutoTransitionWorker creates the worker; schedule is a standard
// five-field cron expression.
func NewAutoTransitionWorker(job service.AutoTransitionJob, schedule string, runTimeout time.Duration, logger *zap.Logger) (*AutoTransitionWorker, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid auto-transition schedule %q: %w", schedule, err)
	}
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	return &AutoTransitionWorker{
		job:        job,
		schedule:   schedule,
		runTimeout: runTimeout,
		logger:     logger,
	}, nil
}

// Name implements Worker
func (w *AutoTransitionWorker) Name() string {
	return "auto-transition"
}

// Start implements Worker
func (w *AutoTransitionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return fmt.Errorf("worker %s already started", w.Name())
	}

	cronLogger := zapCronLogger{logger: w.logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(w.schedule, w.runScheduled); err != nil {
		return fmt.Errorf("failed to schedule auto-transition job: %w", err)
	}

	w.ctx = ctx
	w.cron = c
	c.Start()

	w.logger.Info("Auto-transition worker scheduled", zap.String("schedule", w.schedule))
	return nil
}

// Stop implements Worker; it waits for a running sweep to finish
func (w *AutoTransitionWorker) Stop() error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return nil
	}
	<-c.Stop().Done()
	return nil
}

// RunOnce performs one sweep bounded by the run timeout
func (w *AutoTransitionWorker) RunOnce(ctx context.Context) (*service.ReconcileReport, error) {
	ctx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	report, err := w.job.Run(ctx)

	w.mu.Lock()
	if report != nil {
		w.lastRun = report
	}
	w.mu.Unlock()

	return report, err
}

// LastReport returns the report of the most recent sweep, if any
func (w *AutoTransitionWorker) LastReport() *service.ReconcileReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

func (w *AutoTransitionWorker) runScheduled() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	report, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Auto-transition sweep failed", zap.Error(err))
		return
	}
	w.logger.Info("Auto-transition sweep finished",
		zap.Int("definitions", report.Definitions),
		zap.Int("instances", report.Instances),
		zap.Int("suggested", report.Suggested),
		zap.Int("executed", report.Executed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ Worker = (*AutoTransitionWorker)(nil)
