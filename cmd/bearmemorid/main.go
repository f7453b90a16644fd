// Command bearmemorid is the BearMemori core daemon: it wires the durable
// store, stream bus, job dispatcher, worker pipeline, housekeeping
// scheduler, and HTTP surface into one process and runs them concurrently
// until shutdown. Grounded on the teacher's cmd/vega/serve.go +
// cmd/vega/main.go shape (flag-parsed subcommand, os/signal.NotifyContext
// graceful shutdown, Server.Start(ctx) blocking run loop), generalized from
// one HTTP server to N cooperating subsystems joined by an errgroup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bearmemori/bearmemori/internal/config"
	"github.com/bearmemori/bearmemori/internal/dispatcher"
	"github.com/bearmemori/bearmemori/internal/httpapi"
	"github.com/bearmemori/bearmemori/internal/llmclient"
	"github.com/bearmemori/bearmemori/internal/scheduler"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
	"github.com/bearmemori/bearmemori/internal/worker"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		runServe(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("bearmemorid %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		runServe(os.Args[1:])
	}
}

func printUsage() {
	fmt.Println(`BearMemori core daemon

Usage:
  bearmemorid [serve] [options]
  bearmemorid version
  bearmemorid help

Options:
  -mem-bus   Use the in-process stream bus fake instead of Redis (for local development)

All other configuration is read from the environment — see SPEC_FULL.md §6.`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	memBus := fs.Bool("mem-bus", false, "use the in-memory stream bus instead of Redis")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ImageStoragePath, 0o755); err != nil {
		log.Error("create image storage path failed", "error", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath, log)
	if err != nil {
		log.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Init(ctx); err != nil {
		log.Error("store migration failed", "error", err)
		os.Exit(1)
	}

	var bus streambus.Bus
	if *memBus {
		log.Warn("using in-memory stream bus — not durable across restarts")
		bus = streambus.NewMemBus()
	} else {
		redisBus, err := streambus.NewRedisBus(cfg.RedisURL)
		if err != nil {
			log.Error("connect redis failed", "error", err)
			os.Exit(1)
		}
		bus = redisBus
	}
	defer bus.Close()

	if err := dispatcher.EnsureGroups(ctx, bus); err != nil {
		log.Error("ensure consumer groups failed", "error", err)
		os.Exit(1)
	}

	disp := dispatcher.New(st, bus, log)

	llm := llmclient.New(
		llmclient.WithAPIKey(cfg.LLMAPIKey),
		llmclient.WithBaseURL(cfg.LLMBaseURL),
	)

	handlers := &worker.Handlers{
		Store:       st,
		Bus:         bus,
		LLM:         llm,
		VisionModel: cfg.LLMVisionModel,
		TextModel:   cfg.LLMTextModel,
		Log:         log,
	}

	pool := worker.NewPool(bus, st, handlers, log)
	pool.StaleAfter = cfg.MessageStaleAfter
	pool.UnavailableHorizon = cfg.LLMUnavailableHorizon
	pool.MaxRetries = cfg.LLMMaxRetries

	sched := scheduler.New(st, bus, cfg.SchedulerInterval, cfg.SuggestedTagTTL, cfg.EventRequeueAfter, log)

	api := httpapi.New(st, disp, log)
	api.MemoryPendingTTL = cfg.MemoryPendingTTL
	httpSrv := &http.Server{Addr: cfg.Addr(), Handler: api.Handler()}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http surface listening", "addr", cfg.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http surface: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return pool.Run(gctx)
	})

	g.Go(func() error {
		return sched.Start(gctx)
	})

	// Shutdown order per spec.md §5: stop accepting HTTP, stop the
	// scheduler tick, let in-flight LLM calls finish or hit their timeout,
	// close stream consumers without acking in-flight messages.
	<-ctx.Done()
	log.Info("shutdown signal received, draining subsystems")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http surface shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics shutdown error", "error", err)
	}

	if err := g.Wait(); err != nil {
		log.Error("subsystem exited with error", "error", err)
		os.Exit(1)
	}
}
