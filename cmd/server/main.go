package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/g150446/whisper-server/internal/api"
	"github.com/g150446/whisper-server/internal/config"
	"github.com/g150446/whisper-server/internal/transcription"
	"github.com/g150446/whisper-server/internal/whisper"
	"github.com/g150446/whisper-server/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	useHTTPS := flag.Bool("https", false, "Enable HTTPS (default: HTTP)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Resolution order for the model name: positional argument over
	// environment variable over config file over built-in default
	if err := cfg.ApplyEnvOverrides(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment override: %v\n", err)
		os.Exit(1)
	}
	if modelArg := flag.Arg(0); modelArg != "" {
		cfg.Whisper.Model = modelArg
	}
	if *useHTTPS {
		cfg.Server.HTTPS = true
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Resolve TLS material up front: missing certificates are a fatal
	// start-up error, detected before any socket is bound
	var certFile, keyFile string
	if cfg.Server.HTTPS {
		certFile, keyFile, err = cfg.ResolveTLSMaterial()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting whisper server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Invalid model names degrade to the default with a warning; this is a
	// deployment misconfiguration, not a reason to refuse to start
	if model, fellBack := cfg.NormalizeModel(); fellBack {
		log.Warn("Invalid model name, falling back to default",
			logger.String("default", model),
			logger.Any("valid_models", config.ValidModels))
	}

	log.Info("Model configuration",
		logger.String("model", cfg.Whisper.Model),
		logger.String("device", whisper.Device),
		logger.String("compute_type", whisper.ComputeType),
		logger.String("language", cfg.Whisper.Language),
		logger.Int("max_retry_attempts", cfg.Whisper.MaxRetryAttempts),
		logger.Int("download_timeout_seconds", cfg.Whisper.DownloadTimeoutSecs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start model loading in the background; the server begins accepting
	// connections immediately and /health reports progress
	loader := transcription.NewLoader(
		whisper.NewLoadFunc(cfg, log),
		cfg.Whisper.MaxRetryAttempts,
		time.Duration(cfg.Whisper.RetryDelayBaseSecs)*time.Second,
		log,
	)
	loader.Start(ctx)
	defer loader.Close()

	log.Info("Server will start immediately, model loads in the background; check /health for status")

	service := transcription.NewService(loader, cfg.Whisper.Workers, cfg.Storage.ScratchDir, log)
	router := api.NewRouter(service, loader, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		var err error
		if cfg.Server.HTTPS {
			log.Info("Starting HTTPS server",
				logger.String("addr", addr),
				logger.String("cert_file", certFile),
				logger.String("key_file", keyFile))
			err = server.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info("Starting HTTP server", logger.String("addr", addr))
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", addr), logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Cancel the main context first so an in-flight model load aborts
	// cleanly instead of hanging shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	if err := loader.Close(); err != nil {
		log.Error("Error releasing model", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
