package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/parambridge/internal/bridge"
	"github.com/codefionn/parambridge/internal/channel"
	"github.com/codefionn/parambridge/internal/config"
	"github.com/codefionn/parambridge/internal/logger"
	"github.com/codefionn/parambridge/internal/paramtree"
	"github.com/codefionn/parambridge/internal/web"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file path (default: PARAMBRIDGE_CONFIG or ~/.config/parambridge/config.json)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("parambridge %s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "parambridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Global().Close()

	logger.Info("parambridge %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := bridge.NewController()
	if err := registerOwners(controller, cfg); err != nil {
		return err
	}
	if err := controller.Initialize(); err != nil {
		return err
	}

	loop := channel.NewLoop()
	go loop.Run(ctx)
	defer loop.Stop()

	// A channel that fails to bind is disabled; the daemon keeps serving
	// with reduced capability
	clientChannel := startChannel("client", cfg.ClientEndpoint, channel.RouterMode, loop, cfg.MaxConnections, controller)
	publishChannel := startChannel("publish", cfg.PublishEndpoint, channel.PublishMode, loop, cfg.MaxConnections, controller)
	defer func() {
		if clientChannel != nil {
			clientChannel.Stop()
		}
		if publishChannel != nil {
			publishChannel.Stop()
		}
	}()

	// Log level follows config file edits; endpoint changes need a restart
	if err := config.Watch(ctx, configPath, func(updated *config.Config) {
		logger.Global().SetLevel(logger.ParseLevel(updated.LogLevel))
	}); err != nil {
		logger.Warn("Config watcher unavailable: %v", err)
	}

	webServer := web.NewServer(cfg.HTTPAddr, controller, clientChannel)
	webErr := make(chan error, 1)
	go func() {
		webErr <- webServer.Start()
	}()

	select {
	case err := <-webErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	webServer.Stop()
	return nil
}

// registerOwners seeds owners from the parameter files named in the config
func registerOwners(controller *bridge.Controller, cfg *config.Config) error {
	for name, seedFile := range cfg.Owners {
		tree, err := paramtree.FromJSONFile(seedFile)
		if err != nil {
			return fmt.Errorf("failed to load owner %q: %w", name, err)
		}
		if err := controller.RegisterOwner(name, bridge.NewTreeOwner(name, tree)); err != nil {
			return err
		}
	}
	return nil
}

// startChannel binds and starts one channel, returning nil when the bind
// fails
func startChannel(name, endpoint string, mode channel.Mode, loop *channel.Loop, maxConns int, controller *bridge.Controller) *channel.Server {
	server := channel.NewServer(name, endpoint, mode, loop, maxConns)
	if mode == channel.RouterMode {
		server.RegisterReceive(controller.HandleReceive)
	}
	server.RegisterMonitor(controller.HandleMonitor)

	if err := server.Bind(); err != nil {
		logger.Error("Failed to bind %s channel, continuing without it: %v", name, err)
		return nil
	}
	server.Start()
	return server
}
