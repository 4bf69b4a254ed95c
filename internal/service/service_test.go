package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaswindow/internal/alerting"
	"gaswindow/internal/config"
	"gaswindow/internal/sampler"
)

type stubSampler struct {
	window  sampler.Window
	initErr error
	rec     sampler.Recommendation
	recErr  error
}

func (s *stubSampler) Initialize(ctx context.Context) (sampler.Window, error) {
	return s.window, s.initErr
}

func (s *stubSampler) Recommendation(ctx context.Context) (sampler.Recommendation, error) {
	return s.rec, s.recErr
}

type captureNotifier struct {
	notes []alerting.Notification
	err   error
}

func (c *captureNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	if c.err != nil {
		return c.err
	}
	c.notes = append(c.notes, note)
	return nil
}

type captureRecorder struct {
	windows  int
	recs     int
	failures []string
}

func (c *captureRecorder) ObserveWindow(sampler.Window, time.Duration)   { c.windows++ }
func (c *captureRecorder) ObserveRecommendation(sampler.Recommendation) { c.recs++ }
func (c *captureRecorder) RefreshFailed(stage string)                    { c.failures = append(c.failures, stage) }

func alertConfig() *config.Config {
	return &config.Config{Alerting: config.AlertingConfig{
		Enabled:             true,
		SavingsThresholdPct: 5,
		Cooldown:            30 * time.Minute,
		Channels:            []string{"telegram"},
	}}
}

func TestRefreshPublishesRecommendation(t *testing.T) {
	gs := &stubSampler{
		window: sampler.Window{Samples: make([]sampler.GasSample, 3), Attempted: 3},
		rec:    sampler.Recommendation{CurrentGwei: 20, HistoricalLowGwei: 6, EstimatedSavingsPct: 70, BestHourUTC: 5},
	}
	rec := &captureRecorder{}
	notifier := &captureNotifier{}
	svc := New(alertConfig(), nil, gs, notifier, rec, zerolog.Nop())

	_, ok := svc.Latest()
	assert.False(t, ok)

	require.NoError(t, svc.Refresh(context.Background(), time.Now()))

	latest, ok := svc.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, latest.BestHourUTC)
	assert.Equal(t, 1, rec.windows)
	assert.Equal(t, 1, rec.recs)
	assert.Empty(t, notifier.notes, "70% savings is above the alert threshold")
}

func TestRefreshFailures(t *testing.T) {
	rec := &captureRecorder{}
	svc := New(alertConfig(), nil, &stubSampler{initErr: errors.New("rpc down")}, nil, rec, zerolog.Nop())

	err := svc.Refresh(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")

	svc = New(alertConfig(), nil, &stubSampler{recErr: sampler.ErrUninitialized}, nil, rec, zerolog.Nop())
	err = svc.Refresh(context.Background(), time.Now())
	assert.ErrorIs(t, err, sampler.ErrUninitialized)

	assert.Equal(t, []string{"initialize", "recommend"}, rec.failures)
}

func TestRefreshAlertsWithCooldown(t *testing.T) {
	gs := &stubSampler{rec: sampler.Recommendation{
		CurrentPrice:        6.1,
		HistoricalLow:       6,
		EstimatedSavingsPct: 1.64,
		BestTime:            "5:00 - 6:00 UTC",
		BatchingAdvice:      sampler.AdviceIndividual,
	}}
	notifier := &captureNotifier{}
	svc := New(alertConfig(), nil, gs, notifier, nil, zerolog.Nop())

	t0 := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Refresh(context.Background(), t0))
	require.NoError(t, svc.Refresh(context.Background(), t0.Add(10*time.Minute)))
	require.NoError(t, svc.Refresh(context.Background(), t0.Add(31*time.Minute)))

	require.Len(t, notifier.notes, 2)
	assert.Equal(t, "5:00 - 6:00 UTC", notifier.notes[0].BestTime)
	assert.Equal(t, "1.64", notifier.notes[0].EstimatedSavingsPct.StringFixed(2))
	assert.Equal(t, []string{"telegram"}, notifier.notes[0].Channels)
}

func TestRefreshAlertNotesDegradedWindow(t *testing.T) {
	gs := &stubSampler{
		window: sampler.Window{Samples: make([]sampler.GasSample, 97), Attempted: 100, Skipped: 3},
		rec:    sampler.Recommendation{CurrentPrice: 6, HistoricalLow: 6, SampleCount: 97},
	}
	notifier := &captureNotifier{}
	svc := New(alertConfig(), nil, gs, notifier, nil, zerolog.Nop())

	require.NoError(t, svc.Refresh(context.Background(), time.Now()))
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "Note: 3 of 100 blocks could not be read\n", notifier.notes[0].AdditionalMsg)
	assert.Contains(t, alerting.RenderMessage(notifier.notes[0]), "3 of 100 blocks could not be read")

	gs.window = sampler.Window{Samples: make([]sampler.GasSample, 100), Attempted: 100}
	svc = New(alertConfig(), nil, gs, notifier, nil, zerolog.Nop())
	require.NoError(t, svc.Refresh(context.Background(), time.Now()))
	require.Len(t, notifier.notes, 2)
	assert.Empty(t, notifier.notes[1].AdditionalMsg)
}

func TestRefreshAlertFailureDoesNotStartCooldown(t *testing.T) {
	gs := &stubSampler{rec: sampler.Recommendation{EstimatedSavingsPct: -3}}
	notifier := &captureNotifier{err: errors.New("telegram down")}
	svc := New(alertConfig(), nil, gs, notifier, nil, zerolog.Nop())

	t0 := time.Now()
	require.NoError(t, svc.Refresh(context.Background(), t0))

	notifier.err = nil
	require.NoError(t, svc.Refresh(context.Background(), t0.Add(time.Second)))
	assert.Len(t, notifier.notes, 1)
}

func TestRunRequiresScheduler(t *testing.T) {
	svc := New(alertConfig(), nil, &stubSampler{}, nil, nil, zerolog.Nop())
	assert.Error(t, svc.Run(context.Background()))
}
