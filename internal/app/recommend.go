package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gaswindow/internal/sampler"
)

// Recommend samples the window once and prints a gas recommendation.
func (a *App) Recommend(ctx context.Context, opts RecommendOptions) error {
	s, window, closer, err := a.loadWindow(ctx)
	if err != nil {
		return err
	}
	defer closer()

	rec, err := s.Recommendation(ctx)
	if err != nil {
		return err
	}

	if opts.JSON {
		return writeRecommendationJSON(opts.Out, rec, window)
	}
	return writeRecommendation(opts.Out, rec, window)
}

type recommendationJSON struct {
	BestHourUTC         int     `json:"bestHourUTC"`
	BestTime            string  `json:"bestTime"`
	EstimatedSavingsPct float64 `json:"estimatedSavingsPct"`
	CurrentGwei         int     `json:"currentGwei"`
	HistoricalLowGwei   int     `json:"historicalLowGwei"`
	AveragePriceGwei    float64 `json:"averagePriceGwei"`
	BatchingAdvice      string  `json:"batchingAdvice"`
	SampleCount         int     `json:"sampleCount"`
	SkippedBlocks       int     `json:"skippedBlocks"`
	HeadBlock           uint64  `json:"headBlock"`
}

func writeRecommendationJSON(out io.Writer, rec sampler.Recommendation, window sampler.Window) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(recommendationJSON{
		BestHourUTC:         rec.BestHourUTC,
		BestTime:            rec.BestTime,
		EstimatedSavingsPct: rec.EstimatedSavingsPct,
		CurrentGwei:         rec.CurrentGwei,
		HistoricalLowGwei:   rec.HistoricalLowGwei,
		AveragePriceGwei:    rec.AveragePriceGwei,
		BatchingAdvice:      string(rec.BatchingAdvice),
		SampleCount:         rec.SampleCount,
		SkippedBlocks:       window.Skipped,
		HeadBlock:           window.Head,
	})
}

func writeRecommendation(out io.Writer, rec sampler.Recommendation, window sampler.Window) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Current gas price\t%d gwei\n", rec.CurrentGwei)
	fmt.Fprintf(writer, "Window low\t%d gwei\n", rec.HistoricalLowGwei)
	fmt.Fprintf(writer, "Window average\t%.2f gwei\n", rec.AveragePriceGwei)
	fmt.Fprintf(writer, "Best time\t%s\n", rec.BestTime)
	fmt.Fprintf(writer, "Estimated savings\t%.2f%%\n", rec.EstimatedSavingsPct)
	fmt.Fprintf(writer, "Batching advice\t%s\n", rec.BatchingAdvice)
	if window.Attempted > 0 {
		fmt.Fprintf(writer, "Blocks sampled\t%d of %d (head %d)\n", len(window.Samples), window.Attempted, window.Head)
	}
	return writer.Flush()
}
