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

	"github.com/opsdeck/scribe/internal/api"
	"github.com/opsdeck/scribe/internal/audio"
	"github.com/opsdeck/scribe/internal/config"
	"github.com/opsdeck/scribe/internal/dictation"
	"github.com/opsdeck/scribe/internal/storage/sqlite"
	"github.com/opsdeck/scribe/internal/transcription"
	"github.com/opsdeck/scribe/internal/websocket"
	"github.com/opsdeck/scribe/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Scribe server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Error("Failed to open SQLite database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	transcriptStorage := sqlite.NewTranscriptStorage(db, log)

	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	transcriber, err := transcription.NewTranscriber(&cfg.Transcription, log)
	if err != nil {
		log.Error("Failed to create transcriber", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Using transcription provider",
		logger.String("provider", cfg.Transcription.Provider),
		logger.String("model", cfg.Transcription.Model))

	// Each capture session gets a fresh ffmpeg process.
	deviceFactory := func() (audio.Device, error) {
		return audio.NewFFmpegDevice(audio.FFmpegConfig{
			FFmpegPath:  cfg.Audio.FFmpegPath,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			TickMs:      cfg.Audio.TickMs,
		}, log)
	}

	dictationService := dictation.NewService(cfg, deviceFactory, transcriber, transcriptStorage, wsServer, log)

	router := api.NewRouter(dictationService, transcriptStorage, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	if dictationService.Status().Active {
		log.Info("Stopping dictation session...")
		if err := dictationService.Stop(); err != nil {
			log.Error("Error stopping dictation session", logger.Error(err))
		} else {
			log.Info("Dictation session stopped.")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	log.Info("Server fully stopped")
}
