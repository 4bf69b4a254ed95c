package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"gaswindow/internal/sampler"
)

// Export samples the window once and writes it as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	s, _, closer, err := a.loadWindow(ctx)
	if err != nil {
		return err
	}
	defer closer()

	samples, err := s.HistoricalData()
	if err != nil {
		return err
	}

	a.Logger.Info().Int("samples", len(samples)).Msg("exporting gas window")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, samples); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, samples); err != nil {
			return err
		}
	}

	return nil
}

func writeSamplesCSV(path string, samples []sampler.GasSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"block_number", "timestamp", "timestamp_ms", "base_fee_gwei", "priority_fee_gwei"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		priority := ""
		if sample.Priority != nil {
			priority = strconv.FormatFloat(*sample.Priority, 'f', -1, 64)
		}
		record := []string{
			strconv.FormatUint(sample.BlockNumber, 10),
			sample.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatInt(sample.TimestampMillis(), 10),
			strconv.FormatFloat(sample.Price, 'f', -1, 64),
			priority,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSamplesPNG(path string, samples []sampler.GasSample) error {
	if len(samples) < 2 {
		return errors.New("png export needs at least two samples")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	avg, _ := sampler.AveragePrice(samples)

	// samples are most recent first; the chart wants ascending time
	n := len(samples)
	x := make([]time.Time, n)
	price := make([]float64, n)
	average := make([]float64, n)
	for i, sample := range samples {
		j := n - 1 - i
		x[j] = sample.Timestamp
		price[j] = sample.Price
		average[j] = avg
	}

	gweiFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Base fee (gwei)",
			ValueFormatter: gweiFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Base fee",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "Window average",
				XValues: x,
				YValues: average,
				Style: chart.Style{
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
