package cli

import (
	"github.com/spf13/cobra"

	"stock-data-ingest/internal/app"
)

var jobsOpts app.JobsOptions

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent ingestion jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Jobs(cmd.Context(), jobsOpts)
	},
}

func init() {
	jobsCmd.Flags().IntVar(&jobsOpts.Limit, "limit", 20, "Maximum number of jobs to list")
}
