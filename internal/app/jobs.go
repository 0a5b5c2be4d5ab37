package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Jobs prints recent ingestion jobs.
func (a *App) Jobs(ctx context.Context, opts JobsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	jobs, err := store.ListRecentJobs(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stdout, "no jobs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tType\tStatus\tInterval\tFetched\tSaved\tError")

	for _, job := range jobs {
		errMsg := job.ErrorMessage
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			job.StartedAt.UTC().Format(time.RFC3339),
			job.JobType,
			job.Status,
			job.Interval,
			job.RecordsFetched,
			job.RecordsSaved,
			errMsg,
		)
	}
	return writer.Flush()
}
