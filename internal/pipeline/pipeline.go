// Package pipeline chains the stages that turn a photographed table into
// recognised cells: edge preparation, boundary detection, rectification,
// cleanup, table extraction and optional OCR.
package pipeline

import (
	"context"
	"errors"
	"time"

	"tablescan/internal/cells"
	imgio "tablescan/internal/image"
	"tablescan/internal/prep"
	"tablescan/internal/quad"
	"tablescan/internal/rectify"
	"tablescan/internal/table"
	"tablescan/pkg/geometry"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Config holds the parameters of every stage.
type Config struct {
	Prep  prep.Params
	Quad  quad.Params
	Table table.Params
	Cells cells.Params

	// Clean runs the post-rectification cleanup before table extraction.
	Clean bool
}

// DefaultConfig returns the default parameters of every stage.
func DefaultConfig() Config {
	return Config{
		Prep:  prep.DefaultParams(),
		Quad:  quad.DefaultParams(),
		Table: table.DefaultParams(),
		Cells: cells.DefaultParams(),
		Clean: true,
	}
}

// Pipeline processes one image at a time. Run may be called from several
// goroutines; recognizers are pooled by the cell extractor.
type Pipeline struct {
	config    Config
	extractor *cells.Extractor
	log       *logrus.Entry
}

// New creates a Pipeline. With no recognizers the OCR stage is skipped and
// results carry only cell boxes.
func New(cfg Config, recognizers []cells.Recognizer, log *logrus.Entry) (*Pipeline, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	p := &Pipeline{config: cfg, log: log}
	if len(recognizers) > 0 {
		e, err := cells.NewExtractor(cfg.Cells, recognizers, log.WithField("component", "cells"))
		if err != nil {
			return nil, err
		}
		p.extractor = e
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// OCREnabled reports whether cells are recognised.
func (p *Pipeline) OCREnabled() bool {
	return p.extractor != nil
}

// Result is the outcome of one run. It owns its Mats; call Close when done.
type Result struct {
	Quad      geometry.Quad
	Transform geometry.Homography
	Rectified gocv.Mat
	Table     *table.Table
	Cells     []cells.RecognizedCell
	Grid      [][]string
}

// Close releases the rectified image and the table image.
func (r *Result) Close() error {
	var errs []error
	errs = append(errs, r.Rectified.Close())
	if r.Table != nil {
		errs = append(errs, r.Table.Close())
	}
	return errors.Join(errs...)
}

// Boxes returns the table rows, top to bottom.
func (r *Result) Boxes() [][]geometry.RectInt {
	if r.Table == nil {
		return nil
	}
	return r.Table.Rows
}

// Run processes img. Fatal failures are returned as *StageError.
func (p *Pipeline) Run(ctx context.Context, img gocv.Mat) (*Result, error) {
	start := time.Now()
	log := p.log.WithFields(logrus.Fields{"width": img.Cols(), "height": img.Rows()})

	if err := checkpoint(ctx, StagePreprocess); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, &StageError{Stage: StagePreprocess, Err: errors.New("empty image")}
	}
	edges := prep.EdgeMap(img, p.config.Prep)
	defer edges.Close()

	if err := checkpoint(ctx, StageDetect); err != nil {
		return nil, err
	}
	q, err := quad.Detect(edges.Edges, p.config.Quad)
	if err != nil {
		return nil, &StageError{Stage: StageDetect, Err: err}
	}
	log.WithField("quad", q.String()).Debug("document boundary found")

	if err := checkpoint(ctx, StageRectify); err != nil {
		return nil, err
	}
	rect, err := rectify.Rectify(edges.Denoised, q)
	if err != nil {
		return nil, &StageError{Stage: StageRectify, Err: err}
	}
	res := &Result{Quad: q, Transform: rect.Transform, Rectified: rect.Image}
	log.WithFields(logrus.Fields{"out_width": rect.Width, "out_height": rect.Height}).Debug("page rectified")

	fail := func(stage Stage, err error) (*Result, error) {
		res.Close()
		return nil, &StageError{Stage: stage, Err: err}
	}

	if err := checkpoint(ctx, StageClean); err != nil {
		res.Close()
		return nil, err
	}
	page := res.Rectified
	if p.config.Clean {
		page = prep.Clean(res.Rectified, p.config.Prep)
		defer page.Close()
	}

	if err := checkpoint(ctx, StageTable); err != nil {
		res.Close()
		return nil, err
	}
	t, err := table.Extract(page, p.config.Table)
	if err != nil {
		return fail(StageTable, err)
	}
	res.Table = t
	log.WithFields(logrus.Fields{"rows": len(t.Rows), "cells": t.Cells()}).Debug("table extracted")

	if p.extractor != nil {
		recognized, err := p.extractor.Extract(ctx, t)
		if err != nil {
			return fail(StageRecognize, err)
		}
		res.Cells = recognized
		res.Grid = cells.Grid(recognized)
	}

	log.WithFields(logrus.Fields{
		"rows":     len(t.Rows),
		"cells":    len(res.Cells),
		"duration": time.Since(start).String(),
	}).Info("image processed")
	return res, nil
}

// RunFile loads path and processes it.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*Result, error) {
	img, err := imgio.Load(path)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	defer img.Close()

	p.log.WithField("file", path).Debug("image loaded")
	return p.Run(ctx, img)
}

func checkpoint(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
