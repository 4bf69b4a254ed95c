package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gaswindow/internal/alerting"
	"gaswindow/internal/chain"
	"gaswindow/internal/config"
	"gaswindow/internal/metrics"
	"gaswindow/internal/sampler"
	"gaswindow/internal/scheduler"
	"gaswindow/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	accessor chain.Accessor
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// WithAccessor makes the app read from acc instead of dialling ethereum.rpc_url.
func (a *App) WithAccessor(acc chain.Accessor) *App {
	a.accessor = acc
	return a
}

func (a *App) newSampler() (*sampler.Sampler, func()) {
	closer := func() {}
	acc := a.accessor
	if acc == nil && a.Config.Ethereum.RPCURL != "" {
		client := chain.NewClient(chain.Options{
			RPCURL:         a.Config.Ethereum.RPCURL,
			RequestTimeout: a.Config.Ethereum.RequestTimeout,
			DialTimeout:    a.Config.Ethereum.DialTimeout,
		}, a.Logger)
		acc = client
		closer = client.Close
	}
	if acc == nil {
		a.Logger.Warn().Msg("ethereum.rpc_url not configured; chain reads unavailable")
	}

	s := sampler.New(acc, sampler.Options{
		WindowSize:        a.Config.Sampler.WindowSize,
		Concurrency:       a.Config.Sampler.Concurrency,
		RequestsPerSecond: a.Config.Sampler.RequestsPerSecond,
		Burst:             a.Config.Sampler.Burst,
		BatchThreshold:    a.Config.Sampler.BatchThreshold,
	}, a.Logger)
	return s, closer
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// loadWindow builds a sampler and populates it once.
func (a *App) loadWindow(ctx context.Context) (*sampler.Sampler, sampler.Window, func(), error) {
	s, closer := a.newSampler()
	window, err := s.Initialize(ctx)
	if err != nil {
		closer()
		return nil, sampler.Window{}, nil, err
	}
	if window.Degraded() {
		a.Logger.Warn().Int("skipped", window.Skipped).Int("attempted", window.Attempted).Msg("window is missing blocks")
	}
	return s, window, closer, nil
}

// WatchOptions configure the watch command.
type WatchOptions struct {
	Out io.Writer
}

// Watch refreshes the window on the configured interval until interrupted.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, closeSampler := a.newSampler()
	defer closeSampler()

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	var recorder service.Recorder
	var metricsRecorder *metrics.Recorder
	if a.Config.Metrics.Enabled {
		metricsRecorder = metrics.NewRecorder()
		recorder = metricsRecorder
	}

	svc := service.New(a.Config, sched, s, a.newNotifier(), recorder, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	if metricsRecorder != nil {
		g.Go(func() error {
			return metricsRecorder.Serve(gctx, a.Config.Metrics.Addr, a.Logger)
		})
	}
	g.Go(func() error {
		a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting gas watch")
		return svc.Run(gctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("gas watch stopped")
	if rec, ok := svc.Latest(); ok && opts.Out != nil {
		if err := writeRecommendation(opts.Out, rec, sampler.Window{}); err != nil {
			return fmt.Errorf("write final recommendation: %w", err)
		}
	}
	return nil
}

// RecommendOptions configure the recommend command.
type RecommendOptions struct {
	Out  io.Writer
	JSON bool
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Out   io.Writer
	Limit int
}

// ExportOptions hold parameters for exporting the current window.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}
