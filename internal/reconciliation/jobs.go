package reconciliation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cinereserve/pkg/logger"
)

// JobProcessor runs the periodic expiry sweep and the pending recheck.
type JobProcessor struct {
	reconciler Reconciler
	config     *JobConfig
	log        *logger.Logger
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	expiredTotal   atomic.Int64
	rechecked      atomic.Int64
	lastSweepNanos atomic.Int64
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	SweepInterval   time.Duration
	RecheckInterval time.Duration
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		SweepInterval:   1 * time.Minute,
		RecheckInterval: 1 * time.Minute,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(reconciler Reconciler, config *JobConfig, log *logger.Logger) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &JobProcessor{
		reconciler: reconciler,
		config:     config,
		log:        log.WithComponent("reconciliation-jobs"),
		done:       make(chan struct{}),
	}
}

// Start starts all background jobs
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.wg.Add(2)
	go jp.run(ctx, "expiry sweep", jp.config.SweepInterval, jp.SweepOnce)
	go jp.run(ctx, "pending recheck", jp.config.RecheckInterval, jp.RecheckOnce)

	jp.log.Info("Reconciliation jobs started",
		"sweep_interval", jp.config.SweepInterval.String(),
		"recheck_interval", jp.config.RecheckInterval.String(),
	)
}

// Stop stops all background jobs and waits for an in-flight pass to finish.
func (jp *JobProcessor) Stop() {
	jp.stopOnce.Do(func() {
		close(jp.done)
	})
	jp.wg.Wait()
	jp.log.Info("Reconciliation jobs stopped")
}

func (jp *JobProcessor) run(ctx context.Context, name string, interval time.Duration, pass func(context.Context)) {
	defer jp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on startup
	pass(ctx)

	for {
		select {
		case <-ticker.C:
			pass(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			jp.log.Debug("job context cancelled", "job", name)
			return
		}
	}
}

// SweepOnce runs one expiry pass.
func (jp *JobProcessor) SweepOnce(ctx context.Context) {
	expired, err := jp.reconciler.ExpireStalePendingBookings(ctx)
	jp.lastSweepNanos.Store(time.Now().UnixNano())
	if expired > 0 {
		jp.expiredTotal.Add(int64(expired))
		jp.log.Info("Expired stale pending bookings", "count", expired)
	}
	if err != nil {
		jp.log.ErrorWithContext(ctx, "expiry sweep finished with errors", err, nil)
	}
}

// RecheckOnce runs one pending recheck pass.
func (jp *JobProcessor) RecheckOnce(ctx context.Context) {
	changed, err := jp.reconciler.RecheckPending(ctx)
	if changed > 0 {
		jp.rechecked.Add(int64(changed))
		jp.log.Info("Resolved pending bookings from gateway", "count", changed)
	}
	if err != nil {
		jp.log.ErrorWithContext(ctx, "pending recheck finished with errors", err, nil)
	}
}

// GetJobStatus returns the status of background jobs
func (jp *JobProcessor) GetJobStatus() map[string]interface{} {
	status := map[string]interface{}{
		"sweep_interval":   jp.config.SweepInterval.String(),
		"recheck_interval": jp.config.RecheckInterval.String(),
		"expired_total":    jp.expiredTotal.Load(),
		"resolved_total":   jp.rechecked.Load(),
		"status":           "running",
	}
	if last := jp.lastSweepNanos.Load(); last > 0 {
		status["last_sweep_at"] = time.Unix(0, last).UTC().Format(time.RFC3339)
	}
	select {
	case <-jp.done:
		status["status"] = "stopped"
	default:
	}
	return status
}
