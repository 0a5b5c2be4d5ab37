package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"stock-data-ingest/internal/model"
)

// Export renders stored candles for one instrument as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.InstrumentID == 0 {
		return errors.New("--instrument-id is required")
	}

	interval, err := model.ParseInterval(opts.Interval)
	if err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, -1, 0)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListPricesBetween(ctx, opts.InstrumentID, interval, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no candles found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)

	if opts.CSVPath != "" {
		if err := writeCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("rows", len(downsampled)).Msg("CSV export written")
	}

	if opts.PNGPath != "" {
		if err := writeChart(opts.PNGPath, downsampled); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("PNG export written")
	}

	return nil
}

// downsampleRecords thins the series to at most maxPoints, keeping the last
// point so the most recent close always appears.
func downsampleRecords(records []model.PriceRecord, maxPoints int) []model.PriceRecord {
	if maxPoints <= 0 || len(records) <= maxPoints {
		return records
	}
	step := float64(len(records)-1) / float64(maxPoints-1)
	out := make([]model.PriceRecord, 0, maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx >= len(records) {
			idx = len(records) - 1
		}
		out = append(out, records[idx])
	}
	out[len(out)-1] = records[len(records)-1]
	return out
}

func writeCSV(path string, records []model.PriceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"timestamp", "interval", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			string(rec.Interval),
			rec.Open.String(),
			rec.High.String(),
			rec.Low.String(),
			rec.Close.String(),
			fmt.Sprintf("%d", rec.Volume),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeChart(path string, records []model.PriceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	xs := make([]time.Time, 0, len(records))
	ys := make([]float64, 0, len(records))
	for _, rec := range records {
		xs = append(xs, rec.Timestamp)
		f, _ := rec.Close.Float64()
		ys = append(ys, f)
	}

	graph := chart.Chart{
		Title:  "Close price",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "close",
				XValues: xs,
				YValues: ys,
			},
		},
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
