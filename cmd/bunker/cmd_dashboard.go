package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shahjoyal/view-bunker/internal/dashboard"
)

// useConfiguredServer is what a bare --remote resolves to.
const useConfiguredServer = "configured"

var remoteURL string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the bunkers and live blend summary in the terminal",
	Long: `Without --remote the dashboard opens the database and runs the bunker
countdown in-process. With --remote it follows a running "bunker serve"
over its websocket stream; a bare --remote uses dashboard.server_url.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&remoteURL, "remote", "", "Follow a running server at URL")
	dashboardCmd.Flags().Lookup("remote").NoOptDefVal = useConfiguredServer
}

func runDashboard(cmd *cobra.Command, args []string) error {
	opts := dashboard.Options{
		MillNames: cfg.MillNames(),
		Capacity:  cfg.Plant.BunkerCapacity,
		Theme:     cfg.Dashboard.Theme,
	}

	if remoteURL != "" {
		url := remoteURL
		if url == useConfiguredServer {
			url = cfg.Dashboard.ServerURL
		}
		src, err := dashboard.NewRemoteSource(url)
		if err != nil {
			return err
		}
		return dashboard.Run(src, opts)
	}

	l, err := startLive(cfg)
	if err != nil {
		return err
	}
	defer l.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.binder.Run(ctx, cfg.GetTickInterval()) }()
	defer func() {
		cancel()
		<-done
	}()

	return dashboard.Run(dashboard.NewLocalSource(l.monitor), opts)
}
