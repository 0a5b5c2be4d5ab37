package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stock-data-ingest/internal/app"
)

var (
	exportOpts    app.ExportOptions
	exportFromStr string
	exportToStr   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored candles for one instrument as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFromStr != "" {
			from, err := parseTimeFlag(exportFromStr)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			exportOpts.From = &from
		}
		if exportToStr != "" {
			to, err := parseTimeFlag(exportToStr)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			exportOpts.To = &to
		}
		return getApp().Export(cmd.Context(), exportOpts)
	},
}

func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func init() {
	exportCmd.Flags().Int64Var(&exportOpts.InstrumentID, "instrument-id", 0, "Instrument id to export")
	exportCmd.Flags().StringVar(&exportOpts.Interval, "interval", "1d", "Candle interval to export")
	exportCmd.Flags().StringVar(&exportFromStr, "from", "", "Window start (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportToStr, "to", "", "Window end (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportOpts.CSVPath, "csv", "", "CSV output path")
	exportCmd.Flags().StringVar(&exportOpts.PNGPath, "png", "", "PNG output path")
	exportCmd.Flags().IntVar(&exportOpts.MaxPoints, "max-points", 0, "Maximum data points (defaults to config)")
}
