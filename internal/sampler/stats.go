package sampler

import (
	"fmt"
	"math"
)

// DefaultBatchThreshold is the multiple of the window average above which
// batching is advised.
const DefaultBatchThreshold = 1.2

// HourBucket accumulates the prices observed in one UTC hour of the day.
type HourBucket struct {
	Count int
	Sum   float64
}

// Mean returns the average price of the bucket, or zero when empty.
func (b HourBucket) Mean() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.Sum / float64(b.Count)
}

// HourlyBuckets groups samples by the UTC hour of their timestamp.
func HourlyBuckets(samples []GasSample) [24]HourBucket {
	var buckets [24]HourBucket
	for _, s := range samples {
		h := s.Timestamp.UTC().Hour()
		buckets[h].Count++
		buckets[h].Sum += s.Price
	}
	return buckets
}

// BestHour returns the hour whose bucket mean is lowest. Empty buckets are
// ignored and ties go to the earliest hour. ok is false if every bucket is empty.
func BestHour(buckets [24]HourBucket) (hour int, ok bool) {
	best := math.Inf(1)
	for h, b := range buckets {
		if b.Count == 0 {
			continue
		}
		if mean := b.Mean(); mean < best {
			best = mean
			hour = h
			ok = true
		}
	}
	return hour, ok
}

// HistoricalLow returns the minimum price in samples.
func HistoricalLow(samples []GasSample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	low := samples[0].Price
	for _, s := range samples[1:] {
		low = math.Min(low, s.Price)
	}
	return low, true
}

// AveragePrice returns the arithmetic mean price of samples.
func AveragePrice(samples []GasSample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s.Price
	}
	return sum / float64(len(samples)), true
}

// SavingsPct is the share of the current price that waiting for the
// historical low would save. Negative when current is already below it.
func SavingsPct(current, low float64) float64 {
	if current == 0 {
		return 0
	}
	return (current - low) / current * 100
}

// AdviseBatching returns AdviceBatch only when current strictly exceeds
// threshold times the average.
func AdviseBatching(current, average, threshold float64) BatchingAdvice {
	if current > average*threshold {
		return AdviceBatch
	}
	return AdviceIndividual
}

// FormatHourWindow renders a one-hour UTC window, e.g. "23:00 - 0:00 UTC".
func FormatHourWindow(hour int) string {
	return fmt.Sprintf("%d:00 - %d:00 UTC", hour, (hour+1)%24)
}

// Recommend composes a recommendation from samples and a live price in gwei.
func Recommend(samples []GasSample, current, batchThreshold float64) (Recommendation, error) {
	low, ok := HistoricalLow(samples)
	if !ok {
		return Recommendation{}, ErrUninitialized
	}
	avg, _ := AveragePrice(samples)
	hour, _ := BestHour(HourlyBuckets(samples))

	if batchThreshold <= 0 {
		batchThreshold = DefaultBatchThreshold
	}

	return Recommendation{
		BestHourUTC:         hour,
		BestTime:            FormatHourWindow(hour),
		EstimatedSavingsPct: SavingsPct(current, low),
		CurrentGwei:         int(math.Round(current)),
		HistoricalLowGwei:   int(math.Round(low)),
		AveragePriceGwei:    avg,
		BatchingAdvice:      AdviseBatching(current, avg, batchThreshold),
		SampleCount:         len(samples),
		CurrentPrice:        current,
		HistoricalLow:       low,
	}, nil
}
