package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/autodialer/internal/bridge"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the call session over HTTP",
		Long:  "Exposes the call session to a presentation layer: a JSON API, a server-sent event stream and Prometheus metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "autodialer.yaml", "path to autodialer config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	hub := bridge.NewHub()
	s, err := buildStack(cfg, hub.Events())
	if err != nil {
		return err
	}
	defer s.close()
	defer s.dialer.ResetToIdle()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return bridge.Start(ctx, bridge.StartOpts{
		Session: s.dialer,
		Hub:     hub,
		Metrics: s.metrics.Handler(),
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
