// Package sweeper periodically re-polls the provider for verifications that
// are still pending and have not heard from a webhook in a while.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"simkyc/internal/kyc/metrics"
	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/ports"
	"simkyc/pkg/requestcontext"
)

// Refresher applies the poll protocol to one verification.
type Refresher interface {
	RefreshIfNeeded(ctx context.Context, v *models.Verification, sr *models.ServiceRequest) (*models.Verification, error)
}

// Config controls how often the sweep runs and what it picks up.
type Config struct {
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

// Sweeper runs the stale-pending sweep on a cron schedule.
type Sweeper struct {
	cfg           Config
	verifications ports.VerificationStore
	refresher     Refresher
	cron          *cron.Cron
	logger        *slog.Logger
	metrics       *metrics.Metrics

	// cursor is the last verification id polled. Polls that stay pending
	// leave updated_at alone, so batches page by id.
	mu     sync.Mutex
	cursor int64
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func New(cfg Config, verifications ports.VerificationStore, refresher Refresher, opts ...Option) (*Sweeper, error) {
	if verifications == nil {
		return nil, errors.New("verification store is required")
	}
	if refresher == nil {
		return nil, errors.New("refresher is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	s := &Sweeper{
		cfg:           cfg,
		verifications: verifications,
		refresher:     refresher,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo))
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return s, nil
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	s.logger.Info("scheduled pending verification sweep", "schedule", s.cfg.Schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// sweep has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep refreshes the next batch of stale pending verifications and returns
// how many changed status. Batches continue after the last id polled and wrap
// to the start once the end is reached. Failures on one verification do not
// stop the batch.
func (s *Sweeper) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := requestcontext.Now(ctx).Add(-s.cfg.StaleAfter)
	stale, err := s.verifications.ListStalePending(ctx, cutoff, s.cursor, s.cfg.BatchSize)
	if err == nil && len(stale) == 0 && s.cursor > 0 {
		s.cursor = 0
		stale, err = s.verifications.ListStalePending(ctx, cutoff, 0, s.cfg.BatchSize)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list stale verifications", "error", err)
		return 0
	}
	if len(stale) < s.cfg.BatchSize {
		s.cursor = 0
	} else {
		s.cursor = stale[len(stale)-1].ID
	}

	refreshed := 0
	for _, v := range stale {
		got, err := s.refresher.RefreshIfNeeded(ctx, v, nil)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to refresh verification",
				"kyc_verification_id", v.ID,
				"error", err,
			)
			continue
		}
		if got.Status != v.Status {
			refreshed++
		}
	}

	s.metrics.AddSweeperRefreshed(refreshed)
	if len(stale) > 0 {
		s.logger.InfoContext(ctx, "pending verification sweep finished",
			"candidates", len(stale),
			"refreshed", refreshed,
		)
	}
	return refreshed
}
