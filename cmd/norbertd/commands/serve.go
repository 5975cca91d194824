package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/deepaksubu/norbert/errors"
	"github.com/deepaksubu/norbert/internal/cluster"
	"github.com/deepaksubu/norbert/internal/config"
	"github.com/deepaksubu/norbert/internal/executor"
	"github.com/deepaksubu/norbert/internal/registry"
	"github.com/deepaksubu/norbert/internal/stats"
	"github.com/deepaksubu/norbert/logger"
	"github.com/deepaksubu/norbert/server"
	"github.com/deepaksubu/norbert/version"
)

var (
	serveNodeID int
	servePort   int
)

var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the norbertd request server",
	RunE:    runServe,
}

func init() {
	ServeCmd.Flags().IntVar(&serveNodeID, "node-id", 1, "cluster node id to bind as")
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "TCP port to bind (overrides config server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	instanceID := uuid.NewString()
	logger.Infow("norbertd starting",
		logger.FieldComponent, "serve",
		"instance_id", instanceID,
		logger.FieldPort, port,
	)

	reg := registry.New()
	reg.Register("echo", func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}, "", "")

	st := stats.New(cfg.Statistics.Window())

	exec := executor.New(reg, st, executor.Params{
		CorePoolSize:   cfg.Pool.CorePoolSize,
		MaxPoolSize:    cfg.Pool.MaxPoolSize,
		QueueCapacity:  cfg.Pool.QueueCapacity,
		KeepAlive:      cfg.Pool.KeepAlive(),
		RequestTimeout: cfg.Server.RequestTimeout(),
		ServiceTimeout: cfg.Server.ResponseGenerationTimeout(),
	})

	node := cluster.Node{ID: serveNodeID, URL: fmt.Sprintf(":%d", port)}
	coord := cluster.NewInMemory(node)
	if err := coord.Start(context.Background()); err != nil {
		return errors.Wrap(err, "failed to start cluster coordinator")
	}

	srv := server.New(coord, exec, exec, server.Params{
		ShutdownPauseMultiplier: cfg.ShutdownPauseMultiplier,
		CoordinatorSessionMs:    cfg.Coordinator.SessionTimeoutMs,
		AvoidPayloadCopy:        cfg.AvoidPayloadCopy,
	})

	if err := srv.Bind(context.Background(), serveNodeID, true, 0); err != nil {
		return errors.Wrap(err, "failed to bind server")
	}

	pterm.DefaultBasicText.Println(pterm.LightGreen(fmt.Sprintf(
		"norbertd %s listening on %s (node %d)", version.Get().Short(), node.URL, serveNodeID)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	pterm.Info.Println("shutting down gracefully (press Ctrl+C again to force)...")

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		done <- srv.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("server stopped cleanly")
		return nil
	case <-sigCh:
		pterm.Warning.Println("force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}
