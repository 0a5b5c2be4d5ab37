package cli

import (
	"github.com/spf13/cobra"

	"stock-data-ingest/internal/app"
)

var fetchOpts app.FetchOptions

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and persist OHLC data for one instrument",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Fetch(cmd.Context(), fetchOpts)
	},
}

func init() {
	fetchCmd.Flags().Int64Var(&fetchOpts.InstrumentID, "instrument-id", 0, "Instrument id to fetch")
	fetchCmd.Flags().StringVar(&fetchOpts.Symbol, "symbol", "", "Instrument symbol to fetch (alternative to --instrument-id)")
	fetchCmd.Flags().Int64Var(&fetchOpts.DataSourceID, "source", 0, "Data source id (defaults to the preferred active source)")
	fetchCmd.Flags().StringVar(&fetchOpts.Interval, "interval", "1d", "Candle interval (1m,5m,15m,30m,1h,4h,1d,1w,1mo)")
}
