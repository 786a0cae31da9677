// Package config reads tablescan settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"tablescan/internal/cells"
	"tablescan/internal/ocr"
	"tablescan/internal/pipeline"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type AppConfig struct {
	LogLevel  string
	LogFormat string
	OutputDir string
	// Workers bounds how many images are processed at once.
	Workers int
}

type OCRConfig struct {
	Enabled           bool
	Language          string
	PageSegMode       int
	Whitelist         string
	DisableDictionary bool
	// Engines is the number of Tesseract instances shared by all images.
	Engines int
}

type DetectConfig struct {
	EpsilonRatio float64
	MinAreaRatio float64
	Clean        bool
}

type CellsConfig struct {
	Column      int
	MinRowCells int
	MinWidth    int
	MinHeight   int
	Scale       int
}

type Config struct {
	App    AppConfig
	OCR    OCRConfig
	Detect DetectConfig
	Cells  CellsConfig
}

const envPrefix = "TABLESCAN_"

// Load reads .env (if present) and TABLESCAN_* variables. Unset or
// unparsable variables fall back to the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pc := pipeline.DefaultConfig()
	oc := ocr.DefaultOptions()
	workers := defaultWorkerCount()

	cfg := &Config{
		App: AppConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "text"),
			OutputDir: getEnv("OUTPUT_DIR", ""),
			Workers:   getEnvInt("WORKERS", workers),
		},
		OCR: OCRConfig{
			Enabled:           getEnvBool("OCR", false),
			Language:          getEnv("OCR_LANG", oc.Language),
			PageSegMode:       getEnvInt("OCR_PSM", oc.PageSegMode),
			Whitelist:         getEnv("OCR_WHITELIST", ""),
			DisableDictionary: getEnvBool("OCR_NO_DICT", false),
			Engines:           getEnvInt("OCR_ENGINES", workers),
		},
		Detect: DetectConfig{
			EpsilonRatio: getEnvFloat("EPSILON_RATIO", pc.Quad.EpsilonRatio),
			MinAreaRatio: getEnvFloat("MIN_AREA_RATIO", pc.Quad.MinAreaRatio),
			Clean:        getEnvBool("CLEAN", pc.Clean),
		},
		Cells: CellsConfig{
			Column:      getEnvInt("COLUMN", pc.Cells.Column),
			MinRowCells: getEnvInt("MIN_ROW_CELLS", pc.Cells.MinRowCells),
			MinWidth:    getEnvInt("MIN_CELL_WIDTH", pc.Cells.MinWidth),
			MinHeight:   getEnvInt("MIN_CELL_HEIGHT", pc.Cells.MinHeight),
			Scale:       getEnvInt("CELL_SCALE", pc.Cells.Scale),
		},
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.App.LogLevel, err)
	}
	switch c.App.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.App.LogFormat)
	}
	if c.App.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.App.Workers)
	}
	if c.OCR.Enabled && c.OCR.Engines < 1 {
		return fmt.Errorf("OCR engines must be at least 1, got %d", c.OCR.Engines)
	}
	if c.Cells.Column < cells.AllColumns {
		return fmt.Errorf("invalid column %d", c.Cells.Column)
	}
	if c.Cells.Scale < 1 {
		return fmt.Errorf("cell scale must be at least 1, got %d", c.Cells.Scale)
	}
	if c.Detect.EpsilonRatio <= 0 {
		return fmt.Errorf("epsilon ratio must be positive")
	}
	return nil
}

// Pipeline returns the stage parameters with the configured overrides applied.
func (c *Config) Pipeline() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Quad.EpsilonRatio = c.Detect.EpsilonRatio
	pc.Quad.MinAreaRatio = c.Detect.MinAreaRatio
	pc.Clean = c.Detect.Clean

	pc.Cells = pc.Cells.
		WithColumn(c.Cells.Column).
		WithMinSize(c.Cells.MinWidth, c.Cells.MinHeight)
	pc.Cells.MinRowCells = c.Cells.MinRowCells
	pc.Cells.Scale = c.Cells.Scale
	return pc
}

// OCROptions returns the Tesseract engine options.
func (c *Config) OCROptions() ocr.Options {
	return ocr.Options{
		Language:          c.OCR.Language,
		PageSegMode:       c.OCR.PageSegMode,
		Whitelist:         c.OCR.Whitelist,
		DisableDictionary: c.OCR.DisableDictionary,
	}
}

// Logger builds a logger writing to out with the configured level and format.
func (c *Config) Logger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(c.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// defaultWorkerCount leaves one core free and caps the count, since every
// worker may hold a Tesseract instance.
func defaultWorkerCount() int {
	return min(max(runtime.NumCPU()-1, 1), 4)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
