package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/flexmarket/api/runs"
	"github.com/kilianp07/flexmarket/config"
	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/infra/logger"
	"github.com/kilianp07/flexmarket/infra/metrics"
	"github.com/kilianp07/flexmarket/infra/runstore"
)

func newServeCmd(o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored run history over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.API.Addr = addr
			}
			h, closeStores, err := historyHandler(cfg)
			if err != nil {
				return err
			}
			defer closeStores()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.API.Addr, h)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	return cmd
}

// historyHandler opens the iteration log and the result store of cfg.
func historyHandler(cfg *config.Config) (http.Handler, func(), error) {
	log := logger.New("api")
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return nil, nil, err
	}
	var sums runs.Summaries
	var rs *runstore.Store
	if cfg.RunStore.Enabled() {
		if rs, err = runstore.New(cfg.RunStore); err != nil {
			store.Close()
			return nil, nil, err
		}
		sums = rs
	}
	extra := map[string]http.Handler{"GET /metrics": metrics.PromHandler(nil)}
	closeStores := func() {
		if err := store.Close(); err != nil {
			log.Warnf("runlog close: %v", err)
		}
		if rs != nil {
			if err := rs.Close(); err != nil {
				log.Warnf("runstore close: %v", err)
			}
		}
	}
	return runs.NewMux(store, sums, cfg.API.Token, extra), closeStores, nil
}

func serve(ctx context.Context, addr string, h http.Handler) error {
	log := logger.New("api")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("api shutdown: %v", err)
		}
	}()
	log.Infof("serving run history on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
