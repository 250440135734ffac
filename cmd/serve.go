package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/dependency"
)

var (
	servePort    int
	serveVerbose bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and chat channels",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides server.port)")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Debug logging")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveVerbose {
		cfg.Log.Level = "debug"
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	logger, err := container.Logger()
	if err != nil {
		return err
	}
	srv, err := container.Server()
	if err != nil {
		return err
	}
	chans, err := container.Channels()
	if err != nil {
		return err
	}
	loop, err := container.AgentLoop()
	if err != nil {
		return err
	}
	watcher, err := container.Watcher()
	if err != nil {
		return err
	}
	janitor, err := container.Janitor()
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting toolsmith on %s:%d...\n", logo, cfg.Server.Host, cfg.Server.Port)
	if names := chans.EnabledChannels(); len(names) > 0 {
		fmt.Printf("%s Channels: %v\n", okStyle.Render("✓"), names)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return ignoreCanceled(chans.StartAll(ctx)) })
	g.Go(func() error { return ignoreCanceled(loop.Run(ctx)) })
	g.Go(func() error { return janitor.Run(ctx) })
	if cfg.Tools.Watch {
		g.Go(func() error { return watcher.Run(ctx) })
	}

	err = g.Wait()
	logger.Info("toolsmith stopped", zap.Error(err))
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
