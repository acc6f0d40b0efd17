// Package config loads server settings from YAML, .env files and BESTSTOP_* variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/beststop/parking-server/internal/framesource"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BESTSTOP_"

// Config is the full runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Detector DetectorConfig `yaml:"detector"`
	Cycle    CycleConfig    `yaml:"cycle"`
	Labels   LabelConfig    `yaml:"labels"`
	History  HistoryConfig  `yaml:"history"`
	Recorder RecorderConfig `yaml:"recorder"`
	Push     PushConfig     `yaml:"push"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig controls the reporting endpoint.
type HTTPConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	AssetsDir   string   `yaml:"assets_dir"`
}

// DetectorConfig selects and configures the model backend.
type DetectorConfig struct {
	// Kind is "http" (inference sidecar) or "static" (fixed detections, for dry runs).
	Kind      string        `yaml:"kind"`
	URL       string        `yaml:"url"`
	Weights   string        `yaml:"weights"`
	ImageSize int           `yaml:"image_size"`
	Timeout   time.Duration `yaml:"timeout"`
	// Static lists the detections the static detector returns for every frame.
	Static []StaticDetection `yaml:"static"`
}

// StaticDetection is one canned detection.
type StaticDetection struct {
	ClassID    int     `yaml:"class_id"`
	ClassName  string  `yaml:"class_name"`
	Confidence float64 `yaml:"confidence"`
}

// CycleConfig controls the aggregation loop.
type CycleConfig struct {
	// Sources are image/video paths or stream URLs, relative to SourceDir.
	// When empty every supported file in SourceDir is used.
	Sources   []string      `yaml:"sources"`
	SourceDir string        `yaml:"source_dir"`
	Interval  time.Duration `yaml:"interval"`
	Threshold float64       `yaml:"threshold"`
}

// LabelConfig maps detector classes to free/occupied.
type LabelConfig struct {
	FreeIDs       []int    `yaml:"free_ids"`
	OccupiedIDs   []int    `yaml:"occupied_ids"`
	FreeNames     []string `yaml:"free_names"`
	OccupiedNames []string `yaml:"occupied_names"`
}

// HistoryConfig enables SQLite persistence. Empty DSN disables it.
type HistoryConfig struct {
	DSN string `yaml:"dsn"`
}

// RecorderConfig enables annotated snapshots. Empty Dir disables it.
type RecorderConfig struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"`
}

// PushConfig forwards every result to a remote /atualizar_vagas. Empty URL disables it.
type PushConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			CORSOrigins: []string{"*"},
		},
		Detector: DetectorConfig{
			Kind:      "http",
			URL:       "http://localhost:5002",
			Weights:   "best.pt",
			ImageSize: 640,
			Timeout:   30 * time.Second,
		},
		Cycle: CycleConfig{
			SourceDir: "imagens",
			Interval:  60 * time.Second,
			Threshold: 0.1,
		},
		Labels: LabelConfig{
			FreeIDs:       []int{1},
			OccupiedIDs:   []int{0},
			FreeNames:     []string{"vazio", "livre", "free", "empty"},
			OccupiedNames: []string{"ocupado", "ocupada", "occupied"},
		},
		Recorder: RecorderConfig{
			Keep: 50,
		},
		Push: PushConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from BESTSTOP_* variables.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("HOST", &c.HTTP.Host)
	integer("PORT", &c.HTTP.Port)
	list("CORS_ORIGINS", &c.HTTP.CORSOrigins)
	str("ASSETS_DIR", &c.HTTP.AssetsDir)

	str("DETECTOR_KIND", &c.Detector.Kind)
	str("DETECTOR_URL", &c.Detector.URL)
	str("MODEL_WEIGHTS", &c.Detector.Weights)
	integer("IMAGE_SIZE", &c.Detector.ImageSize)
	duration("DETECTOR_TIMEOUT", &c.Detector.Timeout)

	list("SOURCES", &c.Cycle.Sources)
	str("SOURCE_DIR", &c.Cycle.SourceDir)
	duration("INTERVAL", &c.Cycle.Interval)
	if v, ok := lookup("THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTHRESHOLD: %w", EnvPrefix, err))
		} else {
			c.Cycle.Threshold = f
		}
	}

	str("HISTORY_DSN", &c.History.DSN)
	str("RECORDER_DIR", &c.Recorder.Dir)
	integer("RECORDER_KEEP", &c.Recorder.Keep)
	str("PUSH_URL", &c.Push.URL)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port out of range: %d", c.HTTP.Port))
	}
	switch c.Detector.Kind {
	case "http":
		if c.Detector.URL == "" {
			errs = append(errs, errors.New("detector.url is required for the http detector"))
		}
	case "static":
	default:
		errs = append(errs, fmt.Errorf("detector.kind must be http or static, got %q", c.Detector.Kind))
	}
	if c.Detector.ImageSize < 0 {
		errs = append(errs, fmt.Errorf("detector.image_size must not be negative: %d", c.Detector.ImageSize))
	}
	if c.Cycle.Threshold < 0 || c.Cycle.Threshold > 1 {
		errs = append(errs, fmt.Errorf("cycle.threshold must be within [0,1]: %g", c.Cycle.Threshold))
	}
	if c.Cycle.Interval < 0 {
		errs = append(errs, fmt.Errorf("cycle.interval must not be negative: %v", c.Cycle.Interval))
	}
	if len(c.Cycle.Sources) == 0 && c.Cycle.SourceDir == "" {
		errs = append(errs, errors.New("cycle.sources or cycle.source_dir is required"))
	}
	if c.Recorder.Keep < 0 {
		errs = append(errs, fmt.Errorf("recorder.keep must not be negative: %d", c.Recorder.Keep))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// ResolveSources returns the configured sources, or every supported file in
// SourceDir (sorted by name) when none are listed.
func (c *Config) ResolveSources() ([]string, error) {
	if len(c.Cycle.Sources) > 0 {
		return c.Cycle.Sources, nil
	}

	entries, err := os.ReadDir(c.Cycle.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.Cycle.SourceDir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !framesource.IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("no images or videos in %s", c.Cycle.SourceDir)
	}
	return out, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
