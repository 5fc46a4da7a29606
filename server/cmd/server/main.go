package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensorrelay/sensorrelay/server/internal/alerts"
	"github.com/sensorrelay/sensorrelay/server/internal/api"
	"github.com/sensorrelay/sensorrelay/server/internal/config"
	"github.com/sensorrelay/sensorrelay/server/internal/health"
	"github.com/sensorrelay/sensorrelay/server/internal/logging"
	"github.com/sensorrelay/sensorrelay/server/internal/metrics"
	"github.com/sensorrelay/sensorrelay/server/internal/registry"
	"github.com/sensorrelay/sensorrelay/server/internal/relay"
	"github.com/sensorrelay/sensorrelay/server/internal/store"
	"github.com/sensorrelay/sensorrelay/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses defaults and environment only")
	publicDir := flag.String("public-dir", "", "serve static files from this directory (overrides server.public_dir)")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(logging.New(os.Stdout, "json", level))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *publicDir != "" {
		cfg.Server.PublicDir = *publicDir
	}

	logging.SetLevel(level, cfg.Server.Log.Level) //nolint:errcheck // validated by Load
	slog.SetDefault(logging.New(os.Stdout, cfg.Server.Log.Format, level))

	slog.Info("sensorrelay-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"public_dir", cfg.Server.PublicDir,
		"heartbeat_interval", cfg.Server.Relay.HeartbeatInterval,
		"sweep_interval", cfg.Server.Relay.SweepInterval,
		"alert_rules", len(cfg.Server.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	promReg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(promReg)

	// Alerts engine: evaluates rules on every merged sensor update.
	alertEngine := alerts.New(cfg.Server.Alerts, nil)

	st := store.New()
	engine := relay.New(registry.New(), st,
		relay.WithHeartbeatInterval(cfg.Server.Relay.HeartbeatInterval),
		relay.WithSweepInterval(cfg.Server.Relay.SweepInterval),
		relay.WithMetrics(relayMetrics),
		relay.WithObserver(alertEngine.Evaluate),
	)
	go engine.Run(ctx)

	wsHandler := ws.New(engine, ws.Options{
		SendBuffer:      cfg.Server.WebSocket.SendBuffer,
		WriteTimeout:    cfg.Server.WebSocket.WriteTimeout,
		PongWait:        cfg.Server.WebSocket.PongWait,
		MaxMessageBytes: cfg.Server.WebSocket.MaxMessageBytes,
		RateLimit:       cfg.Server.WebSocket.RateLimit,
		RateBurst:       cfg.Server.WebSocket.RateBurst,
		Metrics:         relayMetrics,
	})

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, engine, alertEngine))
	httpMux.Handle("/metrics", metrics.Handler(promReg))
	httpMux.Handle("/", rootHandler(cfg.Server.WebSocket.Path, wsHandler, staticHandler(cfg.Server.PublicDir)))

	// Optional gRPC health service on its own port.
	var healthSrv *health.Server
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port",
				"port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}
		healthSrv = health.New()
		go func() {
			slog.Info("gRPC health listening", "port", cfg.Server.GRPCPort)
			if err := healthSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	// Hot-reload the log level when the config file changes.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(c *config.Config) {
				if err := logging.SetLevel(level, c.Server.Log.Level); err != nil {
					slog.Warn("config reload: keeping log level", "err", err)
					return
				}
				slog.Info("config reloaded", "log_level", c.Server.Log.Level)
			})
			if err != nil {
				slog.Warn("config watch stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		var err error
		if cfg.Server.TLS.Enabled() {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	for _, line := range banner(cfg) {
		slog.Info(line)
	}
	if healthSrv != nil {
		healthSrv.SetServing(true)
	}

	<-ctx.Done()
	slog.Info("sensorrelay-server shutting down")
	if healthSrv != nil {
		healthSrv.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}
