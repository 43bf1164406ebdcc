package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"caseforge/internal/batch"
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
	outputDir := flag.String("output", "", "Output directory (default: <data>/exports)")
	size := flag.Int("size", 0, "Square export size in pixels (default: 1200)")
	format := flag.String("format", "", "Output format: png, jpg or webp (default: png)")
	quality := flag.Int("quality", 0, "JPEG quality 1-100 (default: 90)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	mockupID := flag.Int("mockup", 0, "Render only this mockup id")
	savedOnly := flag.Bool("saved", false, "Render only mockups with a saved element collection")
	testN := flag.Int("test", 0, "Render only first N mockups for testing")
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
		DataDir:  *dataDir,
		Size:     *size,
		Format:   *format,
		Quality:  *quality,
		Workers:  *workers,
		LogLevel: *logLevel,
	})

	outFormat, err := compositor.ParseFormat(cfg.ExportFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := *outputDir
	if out == "" {
		out = filepath.Join(cfg.DataDir, "exports")
	}

	log := logger.New(cfg.LogLevel, os.Stderr)

	// Open the data root
	disk, err := store.Open(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening data dir: %v\n", err)
		os.Exit(1)
	}
	catalog, err := mockup.OpenCatalog(disk.MockupsDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening catalog: %v\n", err)
		os.Exit(1)
	}

	templates, err := catalog.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing mockups: %v\n", err)
		os.Exit(1)
	}

	// Filter by mockup id
	if *mockupID > 0 {
		var filtered []mockup.Template
		for _, t := range templates {
			if t.ID == *mockupID {
				filtered = append(filtered, t)
			}
		}
		templates = filtered
	}

	// Skip mockups nobody has placed elements on
	if *savedOnly {
		ids, err := disk.SavedElementIDs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing saved elements: %v\n", err)
			os.Exit(1)
		}
		saved := make(map[int]bool, len(ids))
		for _, id := range ids {
			saved[id] = true
		}
		var filtered []mockup.Template
		for _, t := range templates {
			if saved[t.ID] {
				filtered = append(filtered, t)
			}
		}
		templates = filtered
	}

	// Limit for testing
	if *testN > 0 && *testN < len(templates) {
		templates = templates[:*testN]
	}

	if len(templates) == 0 {
		fmt.Println("No mockups to render.")
		os.Exit(0)
	}

	prof := calibration.NewStore(disk.CalibrationPath()).Load()

	// Print summary
	mode := ""
	if *mockupID > 0 {
		mode = fmt.Sprintf(" (mockup %d)", *mockupID)
	} else if *testN > 0 {
		mode = fmt.Sprintf(" (TEST: first %d)", *testN)
	} else if *savedOnly {
		mode = " (saved only)"
	}

	fmt.Printf("caseforge batch export → %s%s\n", outFormat.Ext(), mode)
	fmt.Printf("Mockups: %d, Workers: %d, Size: %dx%d\n", len(templates), cfg.Workers, cfg.ExportSize, cfg.ExportSize)
	fmt.Printf("Output: %s\n", out)
	fmt.Println("------------------------------------------------------------")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	results := batch.Run(ctx, batch.Config{
		Disk:        disk,
		Catalog:     catalog,
		Loader:      disk.Loader(imaging.NewCache()),
		Calibration: prof,
		OutputDir:   out,
		Size:        cfg.ExportSize,
		Format:      outFormat,
		JPEGQuality: cfg.JPEGQuality,
		Workers:     cfg.Workers,
		Log:         log,
		Progress:    os.Stdout,
	}, templates)

	elapsed := time.Since(start)
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Done in %.1fs\n", elapsed.Seconds())

	// Count results
	success, failed := 0, 0
	var errored []batch.Result
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failed++
			errored = append(errored, r)
		}
	}

	fmt.Printf("Rendered: %d/%d\n", success, len(templates))

	if len(errored) > 0 {
		fmt.Printf("\nFailed (%d):\n", failed)
		limit := 20
		if len(errored) < limit {
			limit = len(errored)
		}
		for _, e := range errored[:limit] {
			fmt.Printf("  mockup %d (%s): %s\n", e.MockupID, e.Model, e.Error)
		}
	}

	// Write manifest
	manifestPath := filepath.Join(out, "manifest.json")
	os.MkdirAll(out, 0755)
	if err := batch.WriteManifest(manifestPath, results); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest write failed: %v\n", err)
	} else {
		fmt.Printf("Manifest: %s\n", manifestPath)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
