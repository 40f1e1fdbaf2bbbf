package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rongwang/intentmarket/internal/metrics"
	"github.com/rongwang/intentmarket/internal/utils"
	"github.com/robfig/cron/v3"
)

// Expirer moves overdue pending offers to expired
type Expirer interface {
	ExpireOffers(ctx context.Context) (int, error)
}

// ExpirySweeper runs the offer expiry job on a cron schedule
type ExpirySweeper struct {
	expirer Expirer
	cron    *cron.Cron
	timeout time.Duration
	logger  *utils.Logger
}

// NewExpirySweeper schedules the sweep with a standard cron spec or a
// descriptor such as "@every 1m". Overlapping runs are skipped.
func NewExpirySweeper(expirer Expirer, spec string, timeout time.Duration, logger *utils.Logger) (*ExpirySweeper, error) {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &ExpirySweeper{
		expirer: expirer,
		timeout: timeout,
		logger:  logger,
	}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running the schedule in the background
func (s *ExpirySweeper) Start() {
	s.cron.Start()
	s.logger.Info("offer expiry sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end
func (s *ExpirySweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("offer expiry sweeper stopped")
}

// RunOnce performs a single sweep and records its outcome
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.expirer.ExpireOffers(ctx)
	metrics.RecordExpirySweep(n, time.Since(start), err == nil)
	if err != nil {
		s.logger.Error("offer expiry sweep failed: %v", err)
		return n, err
	}
	return n, nil
}
