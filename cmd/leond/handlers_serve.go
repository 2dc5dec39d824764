package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leon-agent/leon/internal/checkpoint"
	"github.com/leon-agent/leon/internal/config"
	"github.com/leon-agent/leon/internal/hooks"
	"github.com/leon-agent/leon/internal/httpapi"
	"github.com/leon-agent/leon/internal/provider"
	"github.com/leon-agent/leon/internal/queuerouter"
	"github.com/leon-agent/leon/internal/resolver"
	"github.com/leon-agent/leon/internal/runsupervisor"
	"github.com/leon-agent/leon/internal/storage"
	"github.com/leon-agent/leon/internal/toolexec"
)

// runServe wires every subsystem together and blocks until SIGINT/SIGTERM,
// grounded on cmd/nexus/handlers_serve.go's runServe shape (load config,
// build server, run until signal, shut down with a timeout).
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("configuration loaded", "http_port", cfg.Server.HTTPPort, "sqlite_path", cfg.Storage.SQLitePath)

	db, err := storage.Open(ctx, storage.Config{Path: cfg.Storage.SQLitePath})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	providers := buildProviderRegistry(cfg)

	resolverStore, err := resolver.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("failed to build resolver store: %w", err)
	}
	reconciler := resolver.NewReconciler(resolverStore, providers, resolver.DefaultReconcilerConfig(), slog.Default())
	reconcilerCtx, cancelReconciler := context.WithCancel(context.Background())
	defer cancelReconciler()
	go reconciler.Run(reconcilerCtx)

	res := resolver.New(resolverStore, reconciler, resolver.Config{
		ConvergeTimeout: cfg.Resolver.ConvergeTimeout,
		ConvergePoll:    cfg.Resolver.ConvergePoll,
		DefaultProvider: cfg.Resolver.DefaultProvider,
	})

	threads, err := storage.NewThreadStore(db)
	if err != nil {
		return fmt.Errorf("failed to build thread store: %w", err)
	}
	defer threads.Close()

	runs, err := storage.NewRunStore(db)
	if err != nil {
		return fmt.Errorf("failed to build run store: %w", err)
	}
	defer runs.Close()

	checkpoints, err := checkpoint.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("failed to build checkpoint store: %w", err)
	}

	queueStore, err := queuerouter.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("failed to build queue store: %w", err)
	}
	defer queueStore.Close()

	hookChain := hooks.NewChain()
	toolCfg := toolexec.DefaultConfig()
	executor := toolexec.NewExecutor(res, providers, hookChain, toolCfg)

	// No model inference is implemented (§11 Non-goals): runs started
	// against this supervisor surface the resolver/queue/tool wiring end
	// to end and fail at the model boundary with ErrNoModelClient, which
	// runsupervisor already reports as a normal run-error terminal state.
	supervisor := runsupervisor.NewSupervisor(db, nil, executor, runsupervisor.DefaultConfig())

	apiServer := httpapi.NewServer(httpapi.Config{
		DB:          db,
		Threads:     threads,
		Runs:        runs,
		Checkpoints: checkpoints,
		Resolver:    res,
		Supervisor:  supervisor,
		QueueStore:  queueStore,
		Logger:      slog.Default(),
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpServer := &http.Server{Addr: httpAddr, Handler: apiServer.Mount()}

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", httpapi.MetricsHandler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		slog.Info("leond http server listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		slog.Info("leond metrics server listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	slog.Info("leond stopped gracefully")
	return nil
}

// buildProviderRegistry wires the built-in Firecracker provider (enabled
// in config) plus any remote gRPC providers dialed at startup.
func buildProviderRegistry(cfg *config.Config) *provider.Registry {
	var providers []provider.SandboxProvider
	if cfg.Providers.Firecracker.Enabled {
		providers = append(providers, provider.NewFirecrackerProvider(provider.FirecrackerConfig{
			KernelPath: cfg.Providers.Firecracker.KernelPath,
			RootFSPath: cfg.Providers.Firecracker.RootFSPath,
			SocketDir:  cfg.Providers.Firecracker.SocketDir,
			VCPUs:      cfg.Providers.Firecracker.VCPUs,
			MemSizeMB:  cfg.Providers.Firecracker.MemSizeMB,
		}))
	}
	for _, ep := range cfg.Providers.GRPC {
		client, err := provider.DialGRPCProvider(provider.GRPCProviderConfig{Name: ep.Name, Target: ep.Target})
		if err != nil {
			slog.Warn("failed to dial gRPC provider", "name", ep.Name, "target", ep.Target, "error", err)
			continue
		}
		providers = append(providers, client)
	}
	return provider.NewRegistry(providers...)
}
