// Command agent is the long-running daemon: it loads the static network
// configuration, auto-starts enabled tunnels, and serves the control socket
// and metrics endpoint until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harmony-wg/agent/internal/control"
	"github.com/harmony-wg/agent/internal/manager"
	"github.com/harmony-wg/agent/internal/metrics"
	"github.com/harmony-wg/agent/internal/netconfig"
	"github.com/harmony-wg/agent/internal/platform"
)

// version is the value reported in the wg_agent_info metric.
// Overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/wg-agent/config.yaml", "path to the agent configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(logger, *configPath); err != nil {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := netconfig.Load(configPath)
	if err != nil {
		return err
	}

	plat := platform.New()
	mgr := manager.New(logger, plat)
	mgr.RegisterFromConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.AutoStart(ctx)

	controlHandler := control.NewHandler(logger, mgr)
	controlServer := control.NewServer(logger, controlHandler, cfg.Agent.ControlSocketPath)
	if err := controlServer.Start(ctx); err != nil {
		return err
	}

	metricsHandler := metrics.NewHandler(mgr, version)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	httpServer := &http.Server{Addr: cfg.Agent.MetricsAddr, Handler: mux}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped unexpectedly", "error", err)
		}
	}()

	logger.Info("agent started", "control_socket", cfg.Agent.ControlSocketPath, "metrics_addr", cfg.Agent.MetricsAddr, "networks", len(cfg.Networks))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
	controlServer.Shutdown()
	mgr.ShutdownAll(shutdownCtx)

	logger.Info("agent stopped")
	return nil
}
