package config

import (
	"bytes"
	"testing"

	"tablescan/internal/cells"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.GreaterOrEqual(t, cfg.App.Workers, 1)
	assert.False(t, cfg.OCR.Enabled)
	assert.Equal(t, "eng", cfg.OCR.Language)

	pc := cfg.Pipeline()
	assert.Equal(t, 1, pc.Cells.Column)
	assert.Equal(t, 3, pc.Cells.MinRowCells)
	assert.Equal(t, 0.001, pc.Quad.EpsilonRatio)
	assert.True(t, pc.Clean)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TABLESCAN_LOG_LEVEL", "debug")
	t.Setenv("TABLESCAN_LOG_FORMAT", "json")
	t.Setenv("TABLESCAN_WORKERS", "7")
	t.Setenv("TABLESCAN_OCR", "true")
	t.Setenv("TABLESCAN_OCR_LANG", "deu")
	t.Setenv("TABLESCAN_OCR_PSM", "6")
	t.Setenv("TABLESCAN_COLUMN", "-1")
	t.Setenv("TABLESCAN_MIN_ROW_CELLS", "0")
	t.Setenv("TABLESCAN_EPSILON_RATIO", "0.01")
	t.Setenv("TABLESCAN_CLEAN", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7, cfg.App.Workers)
	assert.True(t, cfg.OCR.Enabled)

	opts := cfg.OCROptions()
	assert.Equal(t, "deu", opts.Language)
	assert.Equal(t, 6, opts.PageSegMode)

	pc := cfg.Pipeline()
	assert.Equal(t, cells.AllColumns, pc.Cells.Column)
	assert.Equal(t, 0, pc.Cells.MinRowCells)
	assert.Equal(t, 0.01, pc.Quad.EpsilonRatio)
	assert.False(t, pc.Clean)
}

func TestLoadIgnoresUnparsable(t *testing.T) {
	t.Setenv("TABLESCAN_WORKERS", "many")
	t.Setenv("TABLESCAN_CLEAN", "perhaps")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultWorkerCount(), cfg.App.Workers)
	assert.True(t, cfg.Detect.Clean)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.App.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.App.LogFormat = "xml" }},
		{"workers", func(c *Config) { c.App.Workers = 0 }},
		{"engines", func(c *Config) { c.OCR.Enabled = true; c.OCR.Engines = 0 }},
		{"column", func(c *Config) { c.Cells.Column = -2 }},
		{"scale", func(c *Config) { c.Cells.Scale = 0 }},
		{"epsilon", func(c *Config) { c.Detect.EpsilonRatio = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.App.LogLevel = "warn"
	cfg.App.LogFormat = "json"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.WithField("file", "a.jpg").Warn("shown")
	assert.Contains(t, buf.String(), `"file":"a.jpg"`)
}
