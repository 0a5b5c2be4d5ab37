package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stock-data-ingest/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "stockingest %s\n", version.String())
	},
}
