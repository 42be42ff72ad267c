package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/job"
)

const defaultPollInterval = 500 * time.Millisecond

type scrapeOptions struct {
	year     string
	branches []string
	poll     time.Duration
}

func newScrapeCmd() *cobra.Command {
	opts := &scrapeOptions{poll: defaultPollInterval}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape job in the foreground",
		Long: `Enumerates USNs for the given year and branches, printing progress until
the job finishes. Each branch stops after the configured number of
consecutive missing sheets. Ctrl-C cancels the job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScrape(ctx, appInstance.Jobs(), opts, cmd.OutOrStdout(), appInstance.Logger())
		},
	}
	cmd.Flags().StringVar(&opts.year, "year", "", "two-digit admission year, e.g. 23")
	cmd.Flags().StringSliceVar(&opts.branches, "branch", nil, "branch codes to scan (default all known branches)")
	_ = cmd.MarkFlagRequired("year") //nolint:errcheck
	return cmd
}

func runScrape(ctx context.Context, jobs Jobs, opts *scrapeOptions, out io.Writer, logger *zap.Logger) error {
	status, err := jobs.StartJob(opts.year, opts.branches)
	if err != nil {
		return fmt.Errorf("start scrape: %w", err)
	}
	fmt.Fprintf(out, "job %s: %s\n", status.JobID, status.Message)

	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()
	last := status.Message
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupt received, canceling scrape")
			if err := jobs.Cancel(); err != nil {
				logger.Debug("cancel after interrupt", zap.Error(err))
			}
			waitCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			err := jobs.Wait(waitCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("wait for canceled job: %w", err)
			}
			return printFinal(out, jobs.GetStatus())
		case <-ticker.C:
			current := jobs.GetStatus()
			if current.Message != last {
				fmt.Fprintf(out, "[%d] %s\n", current.Processed, current.Message)
				last = current.Message
			}
			if !current.Running {
				return printFinal(out, current)
			}
		}
	}
}

func printFinal(out io.Writer, status job.Status) error {
	fmt.Fprintf(out, "%s (%d sheets saved)\n", status.Message, status.Processed)
	if status.Summary != nil {
		for _, b := range status.Summary.Branches {
			fmt.Fprintf(out, "  %s: probed=%d saved=%d transient=%d save_errors=%d last_found=%d\n",
				b.Branch, b.Probed, b.Saved, b.Transient, b.SaveErrors, b.LastFound)
		}
	}
	if status.Error != "" {
		return fmt.Errorf("scrape failed: %s", status.Error)
	}
	return nil
}
