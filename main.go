// Package main provides the tablescan batch command: it rectifies photographed
// tables, finds their cells and optionally reads them with Tesseract.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"tablescan/internal/cells"
	"tablescan/internal/config"
	imgio "tablescan/internal/image"
	"tablescan/internal/ocr"
	"tablescan/internal/pipeline"
	"tablescan/internal/version"
	"tablescan/pkg/geometry"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// report is the per-image outcome printed after the batch.
type report struct {
	File   string                 `json:"file"`
	Output string                 `json:"output,omitempty"`
	Rows   [][]geometry.RectInt   `json:"rows,omitempty"`
	Cells  []cells.RecognizedCell `json:"cells,omitempty"`
	Grid   [][]string             `json:"grid,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 2
	}

	outDir := flag.String("out", cfg.App.OutputDir, "Directory for rectified images (default: next to input)")
	useOCR := flag.Bool("ocr", cfg.OCR.Enabled, "Recognise cell text with Tesseract")
	lang := flag.String("lang", cfg.OCR.Language, "Tesseract language")
	column := flag.Int("column", cfg.Cells.Column, "Column to extract, -1 for all")
	workers := flag.Int("workers", cfg.App.Workers, "Images processed in parallel")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: tablescan [flags] images...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg.App.OutputDir = *outDir
	cfg.App.Workers = *workers
	cfg.OCR.Enabled = *useOCR
	cfg.OCR.Language = *lang
	cfg.Cells.Column = *column
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 2
	}

	logger := cfg.Logger(os.Stderr)
	log := logger.WithField("version", version.Version)

	var recognizers []cells.Recognizer
	if cfg.OCR.Enabled {
		engines, err := ocr.NewEngines(cfg.OCR.Engines, cfg.OCROptions())
		if err != nil {
			log.WithError(err).Error("failed to start OCR")
			return 1
		}
		defer ocr.CloseAll(engines)
		for _, e := range engines {
			recognizers = append(recognizers, e)
		}
	}

	p, err := pipeline.New(cfg.Pipeline(), recognizers, log)
	if err != nil {
		log.WithError(err).Error("failed to create pipeline")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, failed := processAll(ctx, p, flag.Args(), cfg.App, log)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			log.WithError(err).Error("failed to write JSON")
			return 1
		}
	} else {
		printReports(os.Stdout, reports)
	}

	log.WithFields(logrus.Fields{
		"images": len(reports),
		"failed": failed,
	}).Info("batch complete")
	if failed > 0 {
		return 1
	}
	return 0
}

// processAll runs the pipeline over paths with bounded parallelism. A failing
// image is reported and does not stop the others.
func processAll(ctx context.Context, p *pipeline.Pipeline, paths []string, app config.AppConfig, log *logrus.Entry) ([]report, int) {
	reports := make([]report, len(paths))
	var failed atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(app.Workers)

	for i, path := range paths {
		reports[i].File = path
		g.Go(func() error {
			flog := log.WithField("file", path)
			if err := processOne(ctx, p, path, app.OutputDir, &reports[i]); err != nil {
				failed.Add(1)
				reports[i].Error = err.Error()
				flog.WithError(err).Error("image failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, int(failed.Load())
}

func processOne(ctx context.Context, p *pipeline.Pipeline, path, outDir string, r *report) error {
	if !imgio.IsSupportedFormat(path) {
		return fmt.Errorf("unsupported format (want one of %s)", strings.Join(imgio.SupportedFormats(), ", "))
	}

	res, err := p.RunFile(ctx, path)
	if err != nil {
		return err
	}
	defer res.Close()

	out := imgio.OutputPath(path, outDir, "rectified")
	if err := imgio.Save(out, res.Rectified); err != nil {
		return err
	}

	r.Output = out
	r.Rows = res.Boxes()
	r.Cells = res.Cells
	r.Grid = res.Grid
	return nil
}

func printReports(w io.Writer, reports []report) {
	for _, r := range reports {
		fmt.Fprintf(w, "=== %s ===\n", r.File)
		if r.Error != "" {
			fmt.Fprintf(w, "error: %s\n\n", r.Error)
			continue
		}
		fmt.Fprintf(w, "rectified: %s\n", r.Output)

		if r.Grid != nil {
			for _, row := range r.Grid {
				fmt.Fprintln(w, strings.Join(row, "\t"))
			}
		} else {
			for i, row := range r.Rows {
				fmt.Fprintf(w, "row %d:", i)
				for _, b := range row {
					fmt.Fprintf(w, " [%d,%d %dx%d]", b.X, b.Y, b.Width, b.Height)
				}
				fmt.Fprintln(w)
			}
		}
		fmt.Fprintln(w)
	}
}
