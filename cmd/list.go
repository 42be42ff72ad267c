package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists stored result sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			artifacts, err := appInstance.Jobs().ListArtifacts(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "YEAR\tBRANCH\tUSN\tNAME\tSIZE_KB\tPATH")
			for _, a := range artifacts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
					a.Year, a.Branch, a.USNSuffix, a.StudentName, a.SizeKB, a.Path)
			}
			if err := tw.Flush(); err != nil {
				return fmt.Errorf("write listing: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d sheets\n", len(artifacts))
			return nil
		},
	}
}

func newBranchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branches",
		Short: "Prints the branch codes scanned by default",
		Args:  cobra.NoArgs,
		// Needs no configuration or services.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			for _, b := range usn.KnownBranches {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
		},
	}
}
