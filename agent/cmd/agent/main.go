package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sensorrelay/sensorrelay/agent/internal/compute"
	"github.com/sensorrelay/sensorrelay/agent/internal/config"
	"github.com/sensorrelay/sensorrelay/agent/internal/scraper"
	"github.com/sensorrelay/sensorrelay/agent/internal/security"
	"github.com/sensorrelay/sensorrelay/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "bridge.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("sensorrelay-bridge starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"relay_endpoint", cfg.Agent.RelayEndpoint,
		"sources", len(cfg.Agent.Sources),
		"scrape_interval", cfg.Agent.ScrapeInterval,
		"heartbeat_interval", cfg.Agent.HeartbeatInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := compute.NewEngine()
	set := newSourceSet(engine)
	set.apply(cfg.Agent.Sources)

	// Sources are rebuilt on reload; relay settings need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			set.apply(updated.Agent.Sources)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	ticker := time.NewTicker(cfg.Agent.ScrapeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sensorrelay-bridge shutting down")
			return
		case t := <-ticker.C:
			for _, s := range set.current() {
				if r := collect(ctx, engine, s, t); r != nil {
					ship.Ship(r)
				}
			}
		}
	}
}

// collect scrapes one source and returns the reading to publish.
func collect(ctx context.Context, engine *compute.Engine, s *scraper.Scraper, now time.Time) *compute.Reading {
	src := s.Source()
	res, err := s.Scrape(ctx)
	if err != nil {
		slog.Warn("scrape error", "source", src.ID, "err", err)
		return nil
	}
	r := engine.Process(src, res, now)
	if src.CheckCert {
		if cs := security.Check(ctx, src); cs != nil {
			r.HasCert = true
			r.CertStatus = cs.Status
			r.CertDaysLeft = cs.DaysLeft
		}
	}
	slog.Debug("reading ready",
		"sensor", r.SensorID,
		"status", r.Status,
		"quality", r.Quality,
	)
	return r
}

// sourceSet holds the scrapers built from the current config.
type sourceSet struct {
	mu       sync.Mutex
	engine   *compute.Engine
	scrapers []*scraper.Scraper
}

func newSourceSet(engine *compute.Engine) *sourceSet {
	return &sourceSet{engine: engine}
}

// apply rebuilds the scrapers for srcs. Sources that disappear lose their
// rate baselines.
func (ss *sourceSet) apply(srcs []config.Source) {
	next := make([]*scraper.Scraper, 0, len(srcs))
	keep := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		s, err := scraper.New(src)
		if err != nil {
			slog.Error("skipping source, could not build scraper", "source", src.ID, "err", err)
			continue
		}
		next = append(next, s)
		keep[src.ID] = true
		slog.Info("registered source", "id", src.ID, "endpoint", src.Endpoint, "fields", len(src.Fields))
	}
	if len(next) == 0 {
		slog.Warn("no sources configured, bridge will only send heartbeats")
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, old := range ss.scrapers {
		if id := old.Source().ID; !keep[id] {
			ss.engine.Forget(id)
		}
	}
	ss.scrapers = next
}

func (ss *sourceSet) current() []*scraper.Scraper {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.scrapers
}
