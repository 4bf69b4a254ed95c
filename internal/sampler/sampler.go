package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gaswindow/internal/chain"
)

const (
	// DefaultWindowSize caps how many blocks a refresh attempts.
	DefaultWindowSize = 100

	priorityPercentile = 50
)

var errMissingBaseFee = errors.New("header has no base fee")

// Options tune a Sampler.
type Options struct {
	WindowSize        int
	Concurrency       int
	RequestsPerSecond float64
	Burst             int
	BatchThreshold    float64
	Now               func() time.Time
}

// Sampler holds the current window. It is safe for concurrent use; refreshes
// are serialised and readers always observe a complete window.
type Sampler struct {
	accessor chain.Accessor
	opts     Options
	limiter  *rate.Limiter
	logger   zerolog.Logger

	refreshMu sync.Mutex

	mu     sync.RWMutex
	window *Window
}

// New constructs a Sampler. A nil accessor is accepted; every chain read then
// fails with ErrAccessorUnavailable.
func New(accessor chain.Accessor, opts Options, logger zerolog.Logger) *Sampler {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = DefaultBatchThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Sampler{
		accessor: accessor,
		opts:     opts,
		logger:   logger.With().Str("component", "sampler").Logger(),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// Initialize replaces the window with up to WindowSize blocks counted down
// from the chain head. Blocks that cannot be read are skipped and counted.
// Only a failed head read, a rate limit that cannot be honoured before the
// context deadline, or a cancelled context is returned as an error; in that
// case the previous window is kept.
func (s *Sampler) Initialize(ctx context.Context) (Window, error) {
	if s.accessor == nil {
		return Window{}, ErrAccessorUnavailable
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	head, err := s.accessor.BlockNumber(ctx)
	if err != nil {
		return Window{}, &FetchError{Op: "read chain head", Err: err}
	}

	attempts := s.opts.WindowSize
	if uint64(attempts) > head+1 {
		attempts = int(head + 1)
	}

	slots := make([]*GasSample, attempts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := 0; i < attempts; i++ {
		i := i
		number := head - uint64(i)
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return fmt.Errorf("wait for rate limit: %w", err)
				}
			}
			sample, err := s.fetchSample(gctx, number)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Debug().Err(err).Uint64("block", number).Msg("skipping block")
				return nil
			}
			slots[i] = sample
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Window{}, err
	}

	samples := make([]GasSample, 0, attempts)
	for _, sample := range slots {
		if sample != nil {
			samples = append(samples, *sample)
		}
	}

	if len(samples) > 0 {
		s.attachPriorityFees(ctx, head, uint64(attempts), samples)
	}

	window := Window{
		Samples:     samples,
		Head:        head,
		Attempted:   attempts,
		Skipped:     attempts - len(samples),
		RefreshedAt: s.opts.Now().UTC(),
	}

	s.mu.Lock()
	s.window = &window
	s.mu.Unlock()

	event := s.logger.Info()
	if window.Degraded() {
		event = s.logger.Warn()
	}
	event.Uint64("head", head).
		Int("samples", len(samples)).
		Int("skipped", window.Skipped).
		Msg("gas window refreshed")

	return window.clone(), nil
}

// Recommendation reads the live gas price and derives a recommendation from
// the current window. The window itself is not modified.
func (s *Sampler) Recommendation(ctx context.Context) (Recommendation, error) {
	if s.accessor == nil {
		return Recommendation{}, ErrAccessorUnavailable
	}

	window, ok := s.Window()
	if !ok || len(window.Samples) == 0 {
		return Recommendation{}, ErrUninitialized
	}

	wei, err := s.accessor.SuggestGasPrice(ctx)
	if err != nil {
		return Recommendation{}, &FetchError{Op: "read gas price", Err: err}
	}

	return Recommend(window.Samples, chain.WeiToGwei(wei), s.opts.BatchThreshold)
}

// HistoricalData returns a copy of the current window's samples.
func (s *Sampler) HistoricalData() ([]GasSample, error) {
	window, ok := s.Window()
	if !ok || len(window.Samples) == 0 {
		return nil, ErrUninitialized
	}
	return window.Samples, nil
}

// Window returns a snapshot of the current window. ok is false before the
// first successful Initialize.
func (s *Sampler) Window() (Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.window == nil {
		return Window{}, false
	}
	return s.window.clone(), true
}

func (s *Sampler) fetchSample(ctx context.Context, number uint64) (*GasSample, error) {
	header, err := s.accessor.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, chain.ErrBlockNotFound
	}
	if header.BaseFee == nil {
		return nil, errMissingBaseFee
	}

	return &GasSample{
		Timestamp:   time.Unix(int64(header.Time), 0).UTC(),
		BlockNumber: number,
		Price:       chain.WeiToGwei(header.BaseFee),
	}, nil
}

// attachPriorityFees fills Priority from eth_feeHistory when the accessor
// supports it. Failures leave priorities unavailable.
func (s *Sampler) attachPriorityFees(ctx context.Context, head, count uint64, samples []GasSample) {
	reader, ok := s.accessor.(chain.FeeHistoryReader)
	if !ok {
		return
	}

	history, err := reader.FeeHistory(ctx, count, new(big.Int).SetUint64(head), []float64{priorityPercentile})
	if err != nil {
		s.logger.Warn().Err(err).Msg("fee history unavailable; priority fees left empty")
		return
	}
	if history == nil || history.OldestBlock == nil || !history.OldestBlock.IsUint64() {
		return
	}

	oldest := history.OldestBlock.Uint64()
	for i := range samples {
		n := samples[i].BlockNumber
		if n < oldest || n-oldest >= uint64(len(history.Reward)) {
			continue
		}
		rewards := history.Reward[n-oldest]
		if len(rewards) == 0 || rewards[0] == nil {
			continue
		}
		tip := chain.WeiToGwei(rewards[0])
		samples[i].Priority = &tip
	}
}
