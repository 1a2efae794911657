// Package cmd implements the flexmarket command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/flexmarket/app"
	"github.com/kilianp07/flexmarket/config"
	"github.com/kilianp07/flexmarket/infra/logger"
)

// options holds the state shared by the subcommands.
type options struct {
	cfgPath string
	appOpts []app.Option
}

func newRootCmd(appOpts ...app.Option) *cobra.Command {
	o := &options{appOpts: appOpts}
	root := &cobra.Command{
		Use:           "flexmarket",
		Short:         "Local flexibility market simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.cfgPath, "config", "c", "", "configuration file (yaml or json)")
	root.AddCommand(newRunCmd(o), newBatchCmd(o), newServeCmd(o))
	return root
}

// Execute runs the CLI.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// start builds the application and a context canceled on SIGINT or SIGTERM.
func (o *options) start(cmd *cobra.Command, cfg *config.Config) (context.Context, *app.App, func(), error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a, err := app.New(cfg, o.appOpts...)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return ctx, a, func() {
		if err := a.Close(); err != nil {
			logger.New("main").Errorf("close: %v", err)
		}
		stop()
	}, nil
}
