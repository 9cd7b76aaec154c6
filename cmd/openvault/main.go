package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openvault-ai/openvault/internal/analyzer"
	"github.com/openvault-ai/openvault/internal/audit"
	"github.com/openvault-ai/openvault/internal/auth"
	"github.com/openvault-ai/openvault/internal/backend"
	"github.com/openvault-ai/openvault/internal/config"
	"github.com/openvault-ai/openvault/internal/constitutional"
	"github.com/openvault-ai/openvault/internal/patterns"
	"github.com/openvault-ai/openvault/internal/policy"
	"github.com/openvault-ai/openvault/internal/server"
	"github.com/openvault-ai/openvault/internal/telemetry"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "openvault.yaml", "Path to OpenVault config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	lib, err := patterns.Compile()
	if err != nil {
		log.Fatalf("failed to compile pattern library: %v", err)
	}

	selection, err := backend.Select(cfg.Backend.BundleDir, cfg.Backend.SeqLen,
		cfg.Server.Environment, cfg.Backend.RequireNative, cfg.Backend.AllowFallback, lib)
	if err != nil {
		log.Fatalf("failed to select analysis backend: %v", err)
	}
	log.Printf("analysis backend: %s (%s)", selection.Mode, selection.Backend.Version())

	a, err := analyzer.New(selection.Backend, cfg.Analyzer.CacheSize)
	if err != nil {
		log.Fatalf("failed to build analyzer: %v", err)
	}

	policies := policy.Empty()
	if cfg.Policies.File != "" {
		policies, err = policy.LoadFile(cfg.Policies.File)
		if err != nil {
			log.Fatalf("failed to load policies: %v", err)
		}
		log.Printf("loaded %d policies (%d active)", len(policies.All()), len(policies.Active()))
	}

	authz, err := auth.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("failed to build auth: %v", err)
	}

	sinks, err := buildSinks(cfg)
	if err != nil {
		log.Fatalf("failed to build audit sinks: %v", err)
	}
	emitter := audit.NewEmitter(audit.EmitterConfig{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
	}, sinks)

	ctx := context.Background()
	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.Service,
		Version:  cfg.Telemetry.Version,
	})
	if err != nil {
		log.Fatalf("failed to set up telemetry: %v", err)
	}

	srv := server.New(server.Options{
		Config:      cfg,
		Auth:        authz,
		Analyzer:    a,
		Policies:    policies,
		Reviser:     constitutional.NewReviser(),
		Audit:       emitter,
		Telemetry:   tel,
		BackendMode: selection.Mode,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("server error: %v", err)
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	emitter.Close(shutdownCtx)
	tel.Shutdown(shutdownCtx)
}

func buildSinks(cfg *config.Config) ([]audit.Sink, error) {
	var sinks []audit.Sink
	for _, sc := range cfg.Audit.Sinks {
		switch sc.Type {
		case "file_jsonl":
			sink, err := audit.NewFileSink(sc.Path)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		case "webhook":
			timeout := time.Duration(sc.TimeoutSeconds) * time.Second
			sink, err := audit.NewWebhookSink(sc.URL, sc.Headers, timeout)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		}
	}
	return sinks, nil
}
