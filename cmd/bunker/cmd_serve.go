package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shahjoyal/view-bunker/internal/binder"
	"github.com/shahjoyal/view-bunker/internal/config"
	"github.com/shahjoyal/view-bunker/internal/logging"
	"github.com/shahjoyal/view-bunker/internal/maintenance"
	"github.com/shahjoyal/view-bunker/internal/monitor"
	"github.com/shahjoyal/view-bunker/internal/server"
	"github.com/shahjoyal/view-bunker/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the bunker countdown and scheduled maintenance",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// live is the running engine shared by serve and the local dashboard.
type live struct {
	store   *store.Store
	binder  *binder.Binder
	monitor *monitor.Monitor
}

func startLive(c *config.Config) (*live, error) {
	st, err := store.Open(c.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	b := binder.New(
		binder.WithMaxLayers(c.Plant.MaxLayers),
		binder.WithEventBuffer(c.Binder.EventBuffer),
	)
	mon := monitor.New(st, b, monitor.Options{
		MaxLayers:          c.Plant.MaxLayers,
		DefaultLayerTonnes: c.Plant.DefaultLayerTonnes,
		EventBuffer:        c.Binder.EventBuffer,
	})
	if err := mon.Start(); err != nil {
		st.Close()
		return nil, err
	}
	return &live{store: st, binder: b, monitor: mon}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, configPath)
}

// serve runs every long-lived component until ctx is cancelled or one fails.
func serve(ctx context.Context, c *config.Config, path string) error {
	l, err := startLive(c)
	if err != nil {
		return err
	}
	defer l.store.Close()

	srv := server.New(server.Config{
		Addr:            c.Server.Addr,
		ReadTimeout:     c.GetReadTimeout(),
		WriteTimeout:    c.GetWriteTimeout(),
		ShutdownTimeout: c.GetShutdownTimeout(),
		ClientBuffer:    c.Binder.EventBuffer,
	}, l.store, l.monitor)
	maint := maintenance.New(l.store, c.Storage.MaintenanceSchedule, c.GetRetention())

	logging.Boot("serving on %s with database %s", c.Server.Addr, c.Storage.DatabasePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.binder.Run(gctx, c.GetTickInterval()) })
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return maint.Run(gctx) })

	if _, err := os.Stat(path); err == nil {
		w, err := config.NewWatcher(path)
		if err != nil {
			logging.Get(logging.CategoryConfig).Warn("config hot reload disabled: %v", err)
		} else {
			w.OnReload(func(next *config.Config) {
				if err := logging.SetLevel(next.Logging.Level); err != nil {
					logging.Get(logging.CategoryConfig).Warn("%v", err)
				}
				logging.SetCategories(next.Logging.Categories)
				l.monitor.SetDefaultLayerTonnes(next.Plant.DefaultLayerTonnes)
				logging.Config("applied reloaded config")
			})
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	err = g.Wait()
	logging.Boot("stopped")
	return err
}
