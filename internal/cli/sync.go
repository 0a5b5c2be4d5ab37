package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the instrument universe from the reference feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "instruments created: %d, skipped: %d\n", result.Created, result.Skipped)
		return nil
	},
}
