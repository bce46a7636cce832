package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

const reclamationLockKey = "seat-reclamation"

// Sweeper frees seats of finished showtimes
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Expirer fails payment intents that never received a callback
type Expirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Spec      string
	IntentTTL time.Duration
	LockTTL   time.Duration
}

// ReclamationScheduler runs the seat reclamation sweep and payment expiry on
// a cron schedule. With a locker, only one replica runs each tick.
type ReclamationScheduler struct {
	sweeper Sweeper
	expirer Expirer
	locker  service.Locker
	cfg     SchedulerConfig
	cron    *cron.Cron
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewReclamationScheduler creates a new scheduler. expirer and locker may be nil.
func NewReclamationScheduler(sweeper Sweeper, expirer Expirer, locker service.Locker, cfg SchedulerConfig) *ReclamationScheduler {
	if cfg.Spec == "" {
		cfg.Spec = "0 * * * * *"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 50 * time.Second
	}
	return &ReclamationScheduler{
		sweeper: sweeper,
		expirer: expirer,
		locker:  locker,
		cfg:     cfg,
		logger:  util.GetLogger(),
	}
}

// Start registers the job and starts the cron goroutine
func (s *ReclamationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	if err := c.AddFunc(s.cfg.Spec, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("invalid reclamation schedule %q: %w", s.cfg.Spec, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	s.running = true
	c.Start()

	s.logger.Info("Reclamation scheduler started", zap.String("spec", s.cfg.Spec))
	return nil
}

// Stop stops the cron goroutine. A tick already running sees its context cancelled.
func (s *ReclamationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.cancel()
	s.running = false

	s.logger.Info("Reclamation scheduler stopped")
}

// RunOnce performs one tick: sweep finished showtimes, then expire stale intents
func (s *ReclamationScheduler) RunOnce() {
	ctx := s.baseContext()

	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, reclamationLockKey, s.cfg.LockTTL)
		if err != nil {
			s.logger.Error("Failed to acquire reclamation lock", zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("Reclamation tick owned by another replica")
			return
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), reclamationLockKey, token); err != nil {
				s.logger.Error("Failed to release reclamation lock", zap.Error(err))
			}
		}()
	}

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("Seat reclamation sweep failed", zap.Error(err))
	}

	if s.expirer != nil && s.cfg.IntentTTL > 0 {
		if _, err := s.expirer.ExpireStale(ctx, s.cfg.IntentTTL); err != nil {
			s.logger.Error("Payment expiry failed", zap.Error(err))
		}
	}
}

func (s *ReclamationScheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
