package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const reconcileLeaseKey = "locks:asset-reconcile"

type reconciler interface {
	Reconcile(ctx context.Context) (*models.ReconciliationReport, error)
}

type strandedRecoverer interface {
	RecoverStranded(ctx context.Context) (*models.RecoveryResult, error)
}

type leaseAcquirer interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error)
}

// ReconcileSchedulerConfig controls the periodic pass.
type ReconcileSchedulerConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// ReconcileScheduler runs reconciliation periodically and on demand. A Redis
// lease keeps concurrent instances from scanning at the same time.
type ReconcileScheduler struct {
	assets    reconciler
	recoverer strandedRecoverer
	lease     leaseAcquirer
	cfg       ReconcileSchedulerConfig
	metrics   *MetricsService
	logger    *zap.Logger

	mu     sync.RWMutex
	latest *models.ReconciliationReport
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconcileScheduler wires the scheduler. recoverer may be nil.
func NewReconcileScheduler(assets reconciler, recoverer strandedRecoverer, lease leaseAcquirer, cfg ReconcileSchedulerConfig, metrics *MetricsService, logger *zap.Logger) *ReconcileScheduler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileScheduler{
		assets:    assets,
		recoverer: recoverer,
		lease:     lease,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "reconcile-scheduler")),
	}
}

// Start launches the periodic loop. It is a no-op without a positive interval.
func (s *ReconcileScheduler) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)
	s.logger.Info("reconciliation scheduler started", zap.Duration("interval", s.cfg.Interval))
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("reconciliation scheduler stopped")
}

func (s *ReconcileScheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.RunNow(ctx); err != nil {
				s.logger.Error("scheduled reconciliation failed", zap.Error(err))
			}
		}
	}
}

// RunNow performs one pass unless another one holds the lease. skipped is
// true when nothing ran.
func (s *ReconcileScheduler) RunNow(ctx context.Context) (report *models.ReconciliationReport, skipped bool, err error) {
	release := func(context.Context) {}
	if s.lease != nil {
		var ok bool
		release, ok, err = s.lease.Acquire(ctx, reconcileLeaseKey, s.cfg.LockTTL)
		if err != nil {
			s.metrics.RecordReconcile(nil, false, err)
			return nil, false, err
		}
		if !ok {
			s.logger.Info("reconciliation skipped, lease held elsewhere")
			s.metrics.RecordReconcile(nil, true, nil)
			return nil, true, nil
		}
	}
	defer release(context.WithoutCancel(ctx))

	report, err = s.assets.Reconcile(ctx)
	if err != nil {
		if errors.Is(err, ErrReconcileInProgress) {
			s.metrics.RecordReconcile(nil, true, nil)
			return nil, true, nil
		}
		s.metrics.RecordReconcile(nil, false, err)
		return nil, false, err
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	if s.recoverer != nil {
		result, err := s.recoverer.RecoverStranded(ctx)
		if err != nil {
			s.logger.Error("stranded admission recovery failed", zap.Error(err))
		} else if len(result.Converted)+len(result.Reverted)+len(result.Failed) > 0 {
			s.logger.Info("stranded admissions recovered",
				zap.Int("converted", len(result.Converted)),
				zap.Int("reverted", len(result.Reverted)),
				zap.Int("failed", len(result.Failed)))
		}
	}
	return report, false, nil
}

// Latest returns the report of the most recent completed pass in this process.
func (s *ReconcileScheduler) Latest() (*models.ReconciliationReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}
