package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"igo/handlers"
	"igo/internal/ai"
	"igo/pkg/config"
	"igo/pkg/logger"
)

var (
	addr       = flag.String("addr", "", "http service address (overrides config ai.server_url)")
	configFile = flag.String("config", "config.yml", "path to config file")
	logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	showCaller = flag.Bool("show-caller", false, "show caller information in logs")
)

func main() {
	flag.Parse()

	logger.InitLoggers(logger.ParseLevel(*logLevel), *showCaller)
	aiLogger := logger.AILogger

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		aiLogger.Warn("Could not load config file %s: %v", *configFile, err)
		aiLogger.Info("Using default configuration")
		cfg = config.Default()
	} else {
		aiLogger.Info("Loaded configuration from %s", *configFile)
	}

	serverAddr := *addr
	if serverAddr == "" {
		u, err := url.Parse(cfg.AI.ServerURL)
		if err != nil || u.Host == "" {
			aiLogger.Fatal("Invalid ai.server_url %q", cfg.AI.ServerURL)
		}
		serverAddr = u.Host
	}

	aiLogger.Info("Starting igo AI server on %s", serverAddr)
	aiLogger.Info("Policy: %s, game server: %s", cfg.AI.Policy, cfg.AI.GameServerURL)

	policyStore, err := ai.OpenPolicyStore(cfg.AI.DataPath)
	if err != nil {
		aiLogger.Fatal("Failed to open policy store: %v", err)
	}
	defer policyStore.Close()
	aiLogger.Info("Opened policy store at %s", cfg.AI.DataPath)

	runtime := ai.NewRuntime(cfg.AI, policyStore, aiLogger)

	// pick the stored games back up before accepting new ones
	if err := runtime.Resume(); err != nil {
		aiLogger.Fatal("Failed to resume stored games: %v", err)
	}

	aiHandler := handlers.NewAIHandler(runtime, aiLogger)

	router := mux.NewRouter()
	router.HandleFunc("/start", aiHandler.HandleStart)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		aiLogger.Info("AI server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			aiLogger.Fatal("AI server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	aiLogger.Info("Shutting down AI server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		aiLogger.Warn("AI server forced to shutdown: %v", err)
	}
	runtime.Shutdown()

	aiLogger.Info("AI server gracefully stopped")
}
