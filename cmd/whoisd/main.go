package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennic/whoisd/internal/whois/common/clock"
	"github.com/opennic/whoisd/internal/whois/common/log"
	"github.com/opennic/whoisd/internal/whois/config"
	"github.com/opennic/whoisd/internal/whois/domain"
	"github.com/opennic/whoisd/internal/whois/gateways/directory"
	"github.com/opennic/whoisd/internal/whois/gateways/transport"
	"github.com/opennic/whoisd/internal/whois/repos/quota"
	boltquota "github.com/opennic/whoisd/internal/whois/repos/quota/bolt"
	memquota "github.com/opennic/whoisd/internal/whois/repos/quota/memory"
	redisquota "github.com/opennic/whoisd/internal/whois/repos/quota/redis"
	"github.com/opennic/whoisd/internal/whois/services/responder"
)

const (
	appName = "whoisd"

	// Registrar attribution display values.
	registrarTierSuffix = ".opennic.glue"
	rootRegistrarLabel  = "OpenNIC"

	// Per-IP connection guard LRU size.
	guardTableSize = 4096

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the WHOIS server.
type Application struct {
	config    *config.AppConfig
	transport *transport.TCPTransport
	responder *responder.Responder
	quota     quota.Store
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       cfg.Version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"port":          cfg.Port,
		"quota_backend": cfg.QuotaBackend,
		"quota_limit":   cfg.QuotaLimit,
		"directory":     cfg.DirectoryURL,
	}, "Starting OpenNIC WHOIS server")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	// Start serving port 43
	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "WHOIS server stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Shared clock for consistent quota day boundaries
	clk := &clock.RealClock{}

	// Logger is already configured globally
	logger := log.GetLogger()

	// Build repository layer
	quotaStore, err := buildQuotaStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build quota store: %w", err)
	}

	// Build gateway layer
	dir := directory.New(directory.Options{
		Config: directory.Config{
			URL:      cfg.DirectoryURL,
			BindDN:   cfg.DirectoryBindDN,
			Password: cfg.DirectoryPassword,
			ZoneBase: cfg.ZoneBase,
			UserBase: cfg.UserBase,
			Timeout:  time.Duration(cfg.DirectoryTimeoutSeconds) * time.Second,
		},
		Logger: logger,
	})

	// Build service layer
	responderService := responder.New(responder.Options{
		Quota:     quotaStore,
		Directory: dir,
		Registrar: domain.RegistrarPolicy{
			RootDN:     cfg.RootDN,
			TopTier:    cfg.Registrars,
			TierSuffix: registrarTierSuffix,
			RootLabel:  rootRegistrarLabel,
		},
		Formatter: &responder.Formatter{
			InfoURL:   cfg.InfoURL,
			LimitsURL: cfg.LimitsURL,
		},
		Clock:  clk,
		Logger: logger,
		Limit:  cfg.QuotaLimit,
	})

	// Optional per-IP connection admission guard
	var guard *transport.AcceptGuard
	if cfg.AcceptRate > 0 {
		guard, err = transport.NewAcceptGuard(cfg.AcceptRate, cfg.AcceptBurst, guardTableSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create accept guard: %w", err)
		}
		log.Info(map[string]any{
			"rate":  cfg.AcceptRate,
			"burst": cfg.AcceptBurst,
		}, "Connection guard configured")
	}

	// Build transport layer
	addr := fmt.Sprintf(":%d", cfg.Port)
	tcpTransport := transport.NewTCPTransport(addr, logger, transport.TCPOpts{
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		Guard:        guard,
	})

	return &Application{
		config:    cfg,
		transport: tcpTransport,
		responder: responderService,
		quota:     quotaStore,
	}, nil
}

// buildQuotaStore selects the per-client daily counter backend.
func buildQuotaStore(cfg *config.AppConfig) (quota.Store, error) {
	switch cfg.QuotaBackend {
	case "bolt":
		store, err := boltquota.New(cfg.QuotaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open quota database %s: %w", cfg.QuotaPath, err)
		}
		log.Info(map[string]any{"path": cfg.QuotaPath}, "Quota store configured (bolt)")
		return store, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Info(map[string]any{"addr": cfg.RedisAddr}, "Quota store configured (redis)")
		return redisquota.New(rdb), nil
	case "memory":
		log.Warn(nil, "Quota store configured (memory): counters reset on restart")
		return memquota.New(), nil
	default:
		return nil, fmt.Errorf("unknown quota backend: %s", cfg.QuotaBackend)
	}
}

// Run starts the WHOIS server and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	// Start TCP transport
	if err := app.transport.Start(ctx, app.responder); err != nil {
		return fmt.Errorf("failed to start TCP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "TCP",
	}, "WHOIS server started")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	// Stop transport gracefully, then release the quota store
	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}

	done := make(chan struct{})
	go func() {
		if err := app.quota.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing quota store")
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
