package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"go.uber.org/zap"

	"semtree/internal/api"
	"semtree/internal/config"
	"semtree/internal/logging"
	"semtree/internal/middleware"
	"semtree/internal/pass"
)

func main() {
	// Load configuration
	cfgPath := os.Getenv("SEMTREE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	root, err := os.Getwd()
	if err != nil {
		logger.Fatal("failed to get working directory", zap.Error(err))
	}
	if found, err := pass.FindRoot(root); err == nil {
		root = found
	}

	runner, err := pass.New(root, cfg, logger.Logger)
	if err != nil {
		logger.Fatal("failed to initialize runner", zap.Error(err))
	}
	defer runner.Close()

	handler := api.NewHandler(runner, logger.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheck)
	mux.HandleFunc("/api/snapshot", handler.GetSnapshot)
	mux.HandleFunc("/api/report", handler.GetReport)
	mux.HandleFunc("/api/verify", handler.PostVerify)
	mux.HandleFunc("/api/history", handler.History)

	chained := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("root", runner.Root))

	if err := http.ListenAndServe(addr, chained); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
