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

	"caseforge/internal/api"
	"caseforge/internal/calibration"
	"caseforge/internal/compositor"
	"caseforge/internal/config"
	"caseforge/internal/imaging"
	"caseforge/internal/logger"
	"caseforge/internal/mockup"
	"caseforge/internal/store"
)

func main() {
	// CLI flags
	configFile := flag.String("config", "", "Path to config.json file")
	dataDir := flag.String("data", "", "Path to data directory (default: auto-detect)")
	addr := flag.String("addr", "", "Listen address (default: :8080)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")

	flag.Parse()

	// Load config
	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		DataDir:    *dataDir,
		ListenAddr: *addr,
		LogLevel:   *logLevel,
	})

	log, closeLog, err := logger.Open(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// Open the data root and its collaborators
	disk, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open data dir")
	}
	catalog, err := mockup.OpenCatalog(disk.MockupsDir())
	if err != nil {
		log.Fatal().Err(err).Msg("open mockup catalog")
	}

	cache := imaging.NewCache()
	comp := compositor.New(disk.Loader(cache), log)
	cal := calibration.NewStore(disk.CalibrationPath())

	a := api.New(disk, catalog, cal, comp, cache, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("data", cfg.DataDir).Msg("caseforge server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.EventHub().Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
