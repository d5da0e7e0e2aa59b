// Package main runs the development agent backend: an in-memory stand-in
// for the hosted CareGuide agent service that the chat client can talk to
// locally.
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

	"github.com/careguide/careguide-go/internal/agentd"
	"github.com/careguide/careguide-go/internal/config"
	"github.com/careguide/careguide-go/internal/llm"
)

func main() {
	scenarioFlag := flag.String("scenarios", "", "path to a YAML scenario script (overrides CAREGUIDE_SCENARIO)")
	stepDelay := flag.Duration("step-delay", 300*time.Millisecond, "delay between events of one reply turn")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	opts := []agentd.Option{
		agentd.WithLogger(logger),
		agentd.WithStepDelay(*stepDelay),
	}

	scenarioPath := cfg.ScenarioPath
	if *scenarioFlag != "" {
		scenarioPath = *scenarioFlag
	}
	if scenarioPath != "" {
		scenarios, err := agentd.LoadScenarios(scenarioPath)
		if err != nil {
			slog.Error("failed to load scenarios", "path", scenarioPath, "error", err)
			os.Exit(1)
		}
		slog.Info("scenarios loaded", "path", scenarioPath, "count", len(scenarios))
		opts = append(opts, agentd.WithScenarios(scenarios))
	}

	if cfg.LLMProvider != "" {
		model, err := llm.NewModel(cfg)
		if err != nil {
			slog.Error("failed to create LLM model", "provider", cfg.LLMProvider, "error", err)
			os.Exit(1)
		}
		slog.Info("llm replies enabled", "provider", cfg.LLMProvider, "model", model.Model())
		opts = append(opts, agentd.WithReplier(model))
	}

	srv := agentd.New(opts...)

	httpServer := &http.Server{
		Addr:         ":" + cfg.AgentdPort,
		Handler:      srv.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // long enough for LLM-composed replies
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("agentd listening", "addr", "http://localhost:"+cfg.AgentdPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down agentd...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("agentd stopped")
}
