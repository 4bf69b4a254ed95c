// Package sampler maintains a trailing window of block base fees and turns
// it into point-in-time gas recommendations.
package sampler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUninitialized is returned when no populated window is available.
	ErrUninitialized = errors.New("sampler: window not initialized")
	// ErrAccessorUnavailable is returned when no chain accessor was supplied.
	ErrAccessorUnavailable = errors.New("sampler: chain accessor unavailable")
)

// FetchError reports a failed chain read. It is never retried by the sampler.
type FetchError struct {
	Op    string
	Block *uint64
	Err   error
}

func (e *FetchError) Error() string {
	if e.Block != nil {
		return fmt.Sprintf("sampler: %s block %d: %v", e.Op, *e.Block, e.Err)
	}
	return fmt.Sprintf("sampler: %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GasSample is one observed block.
type GasSample struct {
	Timestamp   time.Time
	BlockNumber uint64
	// Price is the block base fee in gwei.
	Price float64
	// Priority is the block's median priority fee in gwei, nil when the
	// accessor could not supply fee history.
	Priority *float64
}

// TimestampMillis returns the block timestamp in unix milliseconds.
func (s GasSample) TimestampMillis() int64 {
	return s.Timestamp.UnixMilli()
}

// Window is an immutable snapshot of sampled blocks, most recent first.
type Window struct {
	Samples     []GasSample
	Head        uint64
	Attempted   int
	Skipped     int
	RefreshedAt time.Time
}

// Degraded reports whether any attempted block was skipped.
func (w Window) Degraded() bool {
	return w.Skipped > 0
}

func (w Window) clone() Window {
	out := w
	out.Samples = make([]GasSample, len(w.Samples))
	copy(out.Samples, w.Samples)
	return out
}

// BatchingAdvice tells the caller whether to group transactions.
type BatchingAdvice string

const (
	AdviceBatch      BatchingAdvice = "batch"
	AdviceIndividual BatchingAdvice = "individual"
)

// Recommendation is derived from a window and one live gas price read.
type Recommendation struct {
	BestHourUTC         int
	BestTime            string
	EstimatedSavingsPct float64
	CurrentGwei         int
	HistoricalLowGwei   int
	AveragePriceGwei    float64
	BatchingAdvice      BatchingAdvice
	SampleCount         int

	// Unrounded inputs behind CurrentGwei and HistoricalLowGwei.
	CurrentPrice  float64
	HistoricalLow float64
}
