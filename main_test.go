package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"tablescan/internal/config"
	"tablescan/internal/pipeline"
	"tablescan/pkg/geometry"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReports(t *testing.T) {
	reports := []report{
		{File: "a.jpg", Output: "a_rectified.png", Grid: [][]string{{"Alice", "42"}}},
		{File: "b.jpg", Output: "b_rectified.png", Rows: [][]geometry.RectInt{{{X: 1, Y: 2, Width: 3, Height: 4}}}},
		{File: "c.jpg", Error: "detect: no quadrilateral found"},
	}

	var buf bytes.Buffer
	printReports(&buf, reports)
	out := buf.String()

	assert.Contains(t, out, "=== a.jpg ===\nrectified: a_rectified.png\nAlice\t42\n")
	assert.Contains(t, out, "row 0: [1,2 3x4]")
	assert.Contains(t, out, "error: detect: no quadrilateral found")
}

func TestProcessAllReportsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	p, err := pipeline.New(pipeline.DefaultConfig(), nil, log)
	require.NoError(t, err)

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "notes.txt"), filepath.Join(dir, "missing.png")}
	reports, failed := processAll(context.Background(), p, paths, config.AppConfig{Workers: 2}, log)

	assert.Equal(t, 2, failed)
	require.Len(t, reports, 2)
	assert.Equal(t, paths[0], reports[0].File)
	assert.Contains(t, reports[0].Error, "unsupported format")
	assert.Contains(t, reports[1].Error, "load")
	assert.Len(t, hook.AllEntries(), 2)
}
