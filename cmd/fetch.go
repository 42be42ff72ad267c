package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/usn-result-scraper/internal/job"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <usn>",
		Short: "Downloads the result sheet for a single USN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			path, err := appInstance.Jobs().FetchOne(cmd.Context(), args[0])
			switch {
			case errors.Is(err, job.ErrNotFound):
				return fmt.Errorf("no result found for USN %s", args[0])
			case err != nil:
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved result for %s to %s\n", args[0], path)
			return nil
		},
	}
}
