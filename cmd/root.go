// Package cmd defines the resultscraper command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/config"
	"github.com/JakeFAU/usn-result-scraper/internal/job"
	"github.com/JakeFAU/usn-result-scraper/internal/logging"
	"github.com/JakeFAU/usn-result-scraper/internal/server"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// Jobs is the job manager surface the subcommands drive.
type Jobs interface {
	StartJob(year string, branches []string) (job.Status, error)
	Cancel() error
	Wait(ctx context.Context) error
	GetStatus() job.Status
	FetchOne(ctx context.Context, id string) (string, error)
	ListArtifacts(ctx context.Context) ([]artifact.Artifact, error)
}

// App is what the subcommands need from the assembled application.
// Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Jobs() Jobs
	Logger() *zap.Logger
}

type rootOptions struct {
	configFile string
	envFiles   []string
}

type serverApp struct {
	*server.App
	logger *zap.Logger
}

func (a serverApp) Jobs() Jobs          { return a.Manager }
func (a serverApp) Logger() *zap.Logger { return a.logger }

// newApp is the application factory. It is a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	app, err := server.Build(ctx, cfg, server.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return serverApp{App: app, logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var flushLogger func()

	cmd := &cobra.Command{
		Use:   "resultscraper",
		Short: "Collects exam result sheets from the university results portal.",
		Long: `resultscraper enumerates university seat numbers for a year and a set of
branches, downloads each student's result sheet from the results portal and
stores it as {name}_{suffix}.pdf under Results_PDF_20yy/<branch>/.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, flush, err := logging.Install(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			flushLogger = flush

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				flush()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				if err := appInstance.Close(ctx); err != nil {
					appInstance.Logger().Warn("application close failed", zap.Error(err))
				}
			}
			if flushLogger != nil {
				flushLogger()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading config (default .env)")

	cmd.AddCommand(
		newServeCmd(),
		newScrapeCmd(),
		newFetchCmd(),
		newListCmd(),
		newBranchesCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var _ Jobs = (*job.Manager)(nil)
