// Command auditd runs the audit scheduler daemon: it owns the task store,
// admits and dispatches audit tasks, executes the analyzer subprocess, and
// serves the HTTP API that auditq and external clients talk to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YingxueSec/AI-Code-Sec/internal/analyzer"
	"github.com/YingxueSec/AI-Code-Sec/internal/api"
	"github.com/YingxueSec/AI-Code-Sec/internal/config"
	"github.com/YingxueSec/AI-Code-Sec/internal/events"
	"github.com/YingxueSec/AI-Code-Sec/internal/observability"
	"github.com/YingxueSec/AI-Code-Sec/internal/orchestrator"
	"github.com/YingxueSec/AI-Code-Sec/internal/persistence"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	globalPath := flag.String("global-config", config.GlobalPath(), "global config path")
	projectPath := flag.String("project-config", config.ProjectPath(), "project config path")
	listenAddr := flag.String("listen", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "task database path (overrides config)")
	flag.Parse()

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*globalPath, *projectPath)
	if err != nil {
		return err
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracingFromEnv("auditd")
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("WARNING: shutting down tracing: %v", err)
		}
	}()

	store, err := persistence.NewSQLiteStore(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}
	defer store.Close()

	pm := analyzer.NewProcessManager()
	cmdAnalyzer, err := analyzer.NewCommandAnalyzer(analyzer.Config{
		Command: cfg.Analyzer.Command,
		Args:    cfg.Analyzer.Args,
	}, pm)
	if err != nil {
		return fmt.Errorf("configuring analyzer: %w", err)
	}
	runner := analyzer.NewRunner(cmdAnalyzer, analyzer.DefaultRetryConfig())

	bus := events.NewEventBus()
	defer bus.Close()

	svc, err := orchestrator.NewService(orchestrator.ServiceConfig{
		Settings: cfg,
		Store:    store,
		Analyzer: runner,
		Bus:      bus,
	})
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	// Subscribe before recovery so orphan events reach the log too.
	eventSub := bus.SubscribeAll(256)

	if err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recovering persisted tasks: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(svc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("event=listening addr=%s max_concurrency=%d analyzer=%s",
			cfg.ListenAddr, cfg.MaxConcurrency, cfg.Analyzer.Command)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return svc.RunReaper(gctx)
	})

	g.Go(func() error {
		return config.Watch(gctx, *globalPath, *projectPath, func(next *config.SchedulerConfig) {
			if err := svc.ApplyConfig(gctx, next); err != nil {
				log.Printf("WARNING: applying reloaded config: %v", err)
			}
		})
	})

	// Mirror lifecycle events into the daemon log.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-eventSub:
				if !ok {
					return nil
				}
				log.Println(events.LogLine(ev))
			}
		}
	})

	err = g.Wait()

	// Drain executors, then kill anything the analyzer left behind.
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if derr := svc.Shutdown(drainCtx); derr != nil {
		log.Printf("WARNING: draining executors: %v", derr)
	}
	if kerr := pm.KillAll(); kerr != nil {
		log.Printf("WARNING: killing analyzer subprocesses: %v", kerr)
	}

	log.Println("Shutdown complete")
	return err
}
