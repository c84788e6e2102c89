// Command conductor runs the workflow orchestration service: the JSON-RPC
// method surface on /rpc and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conductor-ai/conductor/agents"
	"github.com/conductor-ai/conductor/api"
	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/config"
	"github.com/conductor-ai/conductor/executor"
	"github.com/conductor-ai/conductor/internal/metrics"
	"github.com/conductor-ai/conductor/internal/store"
	"github.com/conductor-ai/conductor/review"
	"github.com/conductor-ai/conductor/toolcall"
	"github.com/conductor-ai/conductor/workflow"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("conductor " + version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("conductor exited", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(parsed)
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	stores, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}

	agentRegistry := agents.NewRegistry(logger)
	var delegatorOpts []agents.DelegatorOption
	if cfg.Delegation.RatePerSecond > 0 {
		delegatorOpts = append(delegatorOpts,
			agents.WithRateLimit(cfg.Delegation.RatePerSecond, cfg.Delegation.Burst))
	}
	// The agent executor callback is host-supplied; until one is wired in,
	// delegations fail softly with a typed result.
	delegator := agents.NewDelegator(agentRegistry, nil, logger, delegatorOpts...)

	checkpoints := checkpoint.NewController(stores.checkpoints, logger)
	tools := toolcall.NewGate(stores.toolCalls, logger)
	reviews := review.NewManager(stores.panels, logger)

	driver := executor.New(executor.Deps{
		Definitions: stores.workflows,
		Executions:  stores.executions,
		Registry:    agentRegistry,
		Delegator:   delegator,
		Checkpoints: checkpoints,
		Tools:       tools,
		Reviews:     reviews,
		Metrics:     m,
		Logger:      logger,
	}, executor.Config{
		Parallel:      cfg.Executor.Parallel,
		ReviewTimeout: cfg.Executor.ReviewTimeout,
	})

	dispatcher := api.NewServer(api.Services{
		Workflows:   stores.workflows,
		Checkpoints: checkpoints,
		Reviews:     reviews,
		Tools:       tools,
		Registry:    agentRegistry,
		Delegator:   delegator,
		Driver:      driver,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/rpc", dispatcher)
	mux.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", string(cfg.Store.Driver)),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// entityStores groups the persistence backends the components run on.
type entityStores struct {
	workflows   workflow.DefinitionStore
	executions  executor.Store
	checkpoints checkpoint.Store
	toolCalls   toolcall.Store
	panels      review.Store
}

func buildStores(cfg config.Config, logger *zap.Logger) (*entityStores, error) {
	stores := &entityStores{
		workflows:   workflow.NewMemoryDefinitionStore(),
		executions:  executor.NewMemoryStore(),
		checkpoints: checkpoint.NewMemoryStore(),
		toolCalls:   toolcall.NewMemoryStore(),
		panels:      review.NewMemoryStore(),
	}

	if cfg.Store.Driver == config.DriverPostgres {
		db, err := store.Open(cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		stores.workflows = db.Workflows()
		stores.executions = db.Executions()
		stores.checkpoints = db.Checkpoints()
		stores.toolCalls = db.ToolCalls()
		stores.panels = db.Panels()
	}

	if cfg.Store.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		stores.checkpoints = store.NewRedisCheckpointStore(client)
	}

	return stores, nil
}
