package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"gaswindow/internal/sampler"
)

// History samples the window once and prints it, most recent block first.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	s, window, closer, err := a.loadWindow(ctx)
	if err != nil {
		return err
	}
	defer closer()

	samples, err := s.HistoricalData()
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(samples) > opts.Limit {
		samples = samples[:opts.Limit]
	}

	return writeHistory(opts.Out, samples, window)
}

func writeHistory(out io.Writer, samples []sampler.GasSample, window sampler.Window) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Block\tTime (UTC)\tBase fee (gwei)\tPriority fee (gwei)")

	for _, sample := range samples {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n",
			sample.BlockNumber,
			sample.Timestamp.UTC().Format(time.RFC3339),
			formatGwei(sample.Price),
			formatPriority(sample.Priority),
		)
	}

	if window.Skipped > 0 {
		fmt.Fprintf(writer, "\n%d of %d blocks could not be read\n", window.Skipped, window.Attempted)
	}
	return writer.Flush()
}

func formatGwei(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(3)
}

func formatPriority(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatGwei(*v)
}
