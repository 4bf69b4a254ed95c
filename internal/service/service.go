package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gaswindow/internal/alerting"
	"gaswindow/internal/config"
	"gaswindow/internal/sampler"
	"gaswindow/internal/scheduler"
)

// GasSampler is the part of *sampler.Sampler the service drives.
type GasSampler interface {
	Initialize(ctx context.Context) (sampler.Window, error)
	Recommendation(ctx context.Context) (sampler.Recommendation, error)
}

// Recorder receives refresh observations. *metrics.Recorder implements it.
type Recorder interface {
	ObserveWindow(w sampler.Window, took time.Duration)
	ObserveRecommendation(rec sampler.Recommendation)
	RefreshFailed(stage string)
}

// Service refreshes the gas window on a schedule, publishes the latest
// recommendation and raises low-gas alerts.
type Service struct {
	scheduler *scheduler.Scheduler
	sampler   GasSampler
	notifier  alerting.Notifier
	recorder  Recorder
	logger    zerolog.Logger
	now       func() time.Time

	alertsOn  bool
	threshold decimal.Decimal
	cooldown  time.Duration
	channels  []string

	mu        sync.RWMutex
	latest    *sampler.Recommendation
	lastAlert time.Time
}

// New constructs the refresh service. sched, notifier and recorder may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, gs GasSampler, notifier alerting.Notifier, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		sampler:   gs,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
		alertsOn:  cfg.Alerting.Enabled,
		threshold: decimal.NewFromFloat(cfg.Alerting.SavingsThresholdPct),
		cooldown:  cfg.Alerting.Cooldown,
		channels:  cfg.Alerting.Channels,
	}
}

// Run begins the periodic refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Refresh)
}

// Latest returns the most recent successful recommendation.
func (s *Service) Latest() (sampler.Recommendation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return sampler.Recommendation{}, false
	}
	return *s.latest, true
}

// Refresh rebuilds the window and derives a fresh recommendation. Failures
// are returned without retry; the next tick tries again.
func (s *Service) Refresh(ctx context.Context, at time.Time) error {
	started := s.now()
	window, err := s.sampler.Initialize(ctx)
	if err != nil {
		s.failed("initialize")
		return fmt.Errorf("refresh window: %w", err)
	}
	if s.recorder != nil {
		s.recorder.ObserveWindow(window, s.now().Sub(started))
	}

	rec, err := s.sampler.Recommendation(ctx)
	if err != nil {
		s.failed("recommend")
		return fmt.Errorf("recommend: %w", err)
	}
	if s.recorder != nil {
		s.recorder.ObserveRecommendation(rec)
	}

	s.mu.Lock()
	s.latest = &rec
	s.mu.Unlock()

	s.logger.Info().Time("at", at).
		Int("current_gwei", rec.CurrentGwei).
		Int("historical_low_gwei", rec.HistoricalLowGwei).
		Float64("savings_pct", rec.EstimatedSavingsPct).
		Str("best_time", rec.BestTime).
		Str("batching", string(rec.BatchingAdvice)).
		Msg("recommendation updated")

	s.maybeAlert(ctx, at, rec, window)
	return nil
}

func (s *Service) failed(stage string) {
	if s.recorder != nil {
		s.recorder.RefreshFailed(stage)
	}
}

// maybeAlert notifies when the live price sits within the configured
// savings threshold of the window low, at most once per cooldown.
func (s *Service) maybeAlert(ctx context.Context, at time.Time, rec sampler.Recommendation, window sampler.Window) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	savings := decimal.NewFromFloat(rec.EstimatedSavingsPct)
	if savings.GreaterThan(s.threshold) {
		return
	}

	s.mu.RLock()
	last := s.lastAlert
	s.mu.RUnlock()
	if !last.IsZero() && at.Sub(last) < s.cooldown {
		s.logger.Debug().Time("last_alert", last).Msg("alert suppressed by cooldown")
		return
	}

	note := alerting.Notification{
		At:                  at,
		CurrentGwei:         decimal.NewFromFloat(rec.CurrentPrice),
		HistoricalLowGwei:   decimal.NewFromFloat(rec.HistoricalLow),
		AverageGwei:         decimal.NewFromFloat(rec.AveragePriceGwei),
		EstimatedSavingsPct: savings,
		ThresholdPct:        s.threshold,
		BestTime:            rec.BestTime,
		BatchingAdvice:      string(rec.BatchingAdvice),
		SampleCount:         rec.SampleCount,
		Channels:            s.channels,
	}
	if window.Degraded() {
		note.AdditionalMsg = fmt.Sprintf("Note: %d of %d blocks could not be read\n", window.Skipped, window.Attempted)
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("failed to dispatch alert")
		return
	}

	s.mu.Lock()
	s.lastAlert = at
	s.mu.Unlock()
}
