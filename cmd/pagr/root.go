package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/pagr/internal/app"
	"github.com/bobmcallan/pagr/internal/common"
)

// options are the persistent flags shared by every command
type options struct {
	configPath string
	logLevel   string
	jsonOutput bool
	quiet      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "pagr",
		Version:       common.GetFullVersion(),
		Short:         "Portfolio analysis graph",
		Long:          `Loads portfolio holdings, enriches them with issuer and pricing data, and answers exposure questions across portfolios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $PAGR_CONFIG, then pagr.toml next to the binary)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Write results as JSON")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the startup banner")

	root.AddCommand(
		newLoadCmd(opts),
		newExposureCmd(opts),
		newPositionsCmd(opts),
		newExecutivesCmd(opts),
		newStressCmd(opts),
		newPortfoliosCmd(opts),
		newDeleteCmd(opts),
		newVersionCmd(),
	)
	return root
}

// runWithApp initializes the App, runs fn with a context cancelled on
// interrupt, and closes the App afterwards
func runWithApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) error {
	config, err := common.LoadConfig(app.ResolveConfigPath(opts.configPath))
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		config.Logging.Level = opts.logLevel
	}
	logger := common.NewLoggerFromConfig(config.Logging)

	if !opts.quiet && !opts.jsonOutput {
		common.PrintBanner(cmd.ErrOrStderr(), config, logger)
	}

	a, err := app.NewAppWithConfig(config, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}
