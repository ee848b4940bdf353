// Package config loads patchurl settings from an optional YAML file, a .env
// file and PATCHURL_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/asynkron/patchurl/pkg/patch"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PATCHURL_"

// Config represents the complete patchurl configuration.
type Config struct {
	Apply ApplyConfig `yaml:"apply" json:"apply"`
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// ApplyConfig configures the patch engine.
type ApplyConfig struct {
	Strip     int  `yaml:"strip" json:"strip"`
	MaxOffset int  `yaml:"max_offset" json:"max_offset"`
	DryRun    bool `yaml:"dry_run" json:"dry_run"`
}

// FetchConfig configures remote patch retrieval.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	Retries   int           `yaml:"retries" json:"retries"`
	MaxBytes  int64         `yaml:"max_bytes" json:"max_bytes"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultPath is the config file consulted when no explicit path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "patchurl", "config.yaml")
}

// LoadDotenv loads .env files into the process environment. Missing files
// are not an error.
func LoadDotenv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return nil
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, then validates the result. An empty path falls back to
// DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	path = os.ExpandEnv(path)

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays PATCHURL_* variables on top of the file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	integer("STRIP", &c.Apply.Strip)
	integer("MAX_OFFSET", &c.Apply.MaxOffset)
	if v, ok := lookup(EnvPrefix + "DRY_RUN"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDRY_RUN: %w", EnvPrefix, err))
		}
		c.Apply.DryRun = b
	}
	if v, ok := lookup(EnvPrefix + "FETCH_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFETCH_TIMEOUT: %w", EnvPrefix, err))
		}
		c.Fetch.Timeout = d
	}
	integer("FETCH_RETRIES", &c.Fetch.Retries)
	if v, ok := lookup(EnvPrefix + "FETCH_MAX_BYTES"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFETCH_MAX_BYTES: %w", EnvPrefix, err))
		}
		c.Fetch.MaxBytes = n
	}
	str("FETCH_USER_AGENT", &c.Fetch.UserAgent)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return errors.Join(errs...)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Apply.MaxOffset == 0 {
		c.Apply.MaxOffset = patch.DefaultMaxOffset
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 10 << 20
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "patchurl"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration against the embedded JSON schema.
func (c *Config) Validate() error {
	loader, err := loadSchema()
	if err != nil {
		return fmt.Errorf("config: load schema: %w", err)
	}
	result, err := gojsonschema.Validate(loader, gojsonschema.NewGoLoader(c))
	if err != nil {
		return fmt.Errorf("config: schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return &ValidationError{Issues: issues}
}

// ValidationError lists every schema violation.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "configuration failed schema validation"
	}
	return strings.Join(e.Issues, "; ")
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaLoader     gojsonschema.JSONLoader
	schemaLoaderErr  error
	schemaLoaderOnce sync.Once
)

func loadSchema() (gojsonschema.JSONLoader, error) {
	schemaLoaderOnce.Do(func() {
		var schemaMap map[string]any
		if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
			schemaLoaderErr = err
			return
		}
		schemaLoader = gojsonschema.NewGoLoader(schemaMap)
	})
	if schemaLoaderErr != nil {
		return nil, schemaLoaderErr
	}
	return schemaLoader, nil
}
