// Package batch renders every mockup template in a catalog through a worker
// pool, writing one composite per template plus a manifest describing the
// run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"caseforge/internal/calibration"
	"caseforge/internal/compositor"
	"caseforge/internal/element"
	"caseforge/internal/imaging"
	"caseforge/internal/mockup"
	"caseforge/internal/store"
)

// Config holds all shared resources for a batch run.
type Config struct {
	Disk        *store.Disk
	Catalog     *mockup.Catalog
	Loader      imaging.Loader
	Calibration calibration.Profile
	OutputDir   string
	Size        int
	Format      compositor.Format
	JPEGQuality int
	Workers     int
	Log         zerolog.Logger
	Progress    io.Writer // nil silences the progress ticker
}

// Result holds the outcome of rendering one template.
type Result struct {
	MockupID int
	Model    string
	File     string
	Success  bool
	Error    string
}

// Run renders all templates using a worker pool. Each worker carries its own
// compositor so renders proceed in parallel; the loader cache is shared.
func Run(ctx context.Context, cfg Config, templates []mockup.Template) []Result {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	total := len(templates)
	results := make([]Result, total)
	var processed atomic.Int64

	start := time.Now()

	// Progress reporter
	done := make(chan struct{})
	go func() {
		if cfg.Progress == nil {
			return
		}
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := processed.Load()
				if p > 0 {
					elapsed := time.Since(start).Seconds()
					rate := float64(p) / elapsed
					fmt.Fprintf(cfg.Progress, "  [%d/%d] %.1f mockups/sec\n", p, total, rate)
				}
			}
		}
	}()

	// Worker pool
	jobs := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comp := compositor.New(cfg.Loader, cfg.Log)
			for idx := range jobs {
				results[idx] = renderTemplate(ctx, cfg, comp, templates[idx])
				processed.Add(1)
			}
		}()
	}

	for i := range templates {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(done)

	return results
}

func renderTemplate(ctx context.Context, cfg Config, comp *compositor.Compositor, t mockup.Template) Result {
	res := Result{MockupID: t.ID, Model: t.Model}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	path, err := cfg.Catalog.FilePath(t.ID)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	col, err := cfg.Disk.LoadElements(ctx, t.ID)
	if errors.Is(err, store.ErrNotFound) {
		col = element.NewCollection()
	} else if err != nil {
		res.Error = err.Error()
		return res
	}
	col.Normalize()

	params := compositor.Params{
		Width:       cfg.Size,
		Height:      cfg.Size,
		Format:      cfg.Format,
		JPEGQuality: cfg.JPEGQuality,
	}
	scene := compositor.Scene{
		MockupSource: path,
		Elements:     col.Elements,
		Background:   col.Background,
	}

	img, err := comp.Render(ctx, scene, cfg.Calibration, params)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	name := compositor.ExportName(t, params)
	outPath := filepath.Join(cfg.OutputDir, name)
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		res.Error = err.Error()
		return res
	}
	f, err := os.Create(outPath)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	if err := compositor.Encode(f, img, params.Format, params.JPEGQuality); err != nil {
		res.Error = fmt.Sprintf("encode: %v", err)
		return res
	}

	res.File = name
	res.Success = true
	return res
}
