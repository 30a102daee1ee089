package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load. The first two keep the names the
// Specifier tooling has always used.
const (
	EnvAPIURL           = "SpecifierApiUrl"
	EnvImagesDirectory  = "SpecifierImagesDirectory"
	EnvHTTPTimeout      = "SPECIFIER_HTTP_TIMEOUT"
	EnvFallbackShotType = "SPECIFIER_FALLBACK_SHOT_TYPE"
	EnvLookupFirst      = "SPECIFIER_LOOKUP_FIRST"
)

const (
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultFallbackShotType = 4
)

// ErrConfigurationMissing is returned when the API URL or the images
// directory is unset or unusable.
var ErrConfigurationMissing = errors.New("configuration missing")

// Config holds everything the scraper needs to talk to the API and place files.
type Config struct {
	APIURL           string        `yaml:"api_url"`
	ImagesDirectory  string        `yaml:"images_directory"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	FallbackShotType int           `yaml:"fallback_shot_type"`
	LookupFirst      bool          `yaml:"lookup_first"`
}

// Default returns a Config with defaults applied and no endpoints set.
func Default() Config {
	return Config{
		HTTPTimeout:      DefaultHTTPTimeout,
		FallbackShotType: DefaultFallbackShotType,
		LookupFirst:      true,
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in increasing order of precedence. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvImagesDirectory)); v != "" {
		c.ImagesDirectory = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHTTPTimeout, v, err)
		}
		c.HTTPTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv(EnvFallbackShotType)); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvFallbackShotType, v, err)
		}
		c.FallbackShotType = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvLookupFirst)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvLookupFirst, v, err)
		}
		c.LookupFirst = b
	}
	return nil
}

// Validate checks that the API URL parses as an absolute http(s) URL and that
// the images directory exists, is a directory, and accepts new files.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: API URL not set (export %s or use --api-url)", ErrConfigurationMissing, EnvAPIURL)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: invalid API URL %q", ErrConfigurationMissing, c.APIURL)
	}

	if c.ImagesDirectory == "" {
		return fmt.Errorf("%w: images directory not set (export %s or use --images-dir)", ErrConfigurationMissing, EnvImagesDirectory)
	}
	info, err := os.Stat(c.ImagesDirectory)
	if err != nil {
		return fmt.Errorf("%w: images directory %s not found: %w", ErrConfigurationMissing, c.ImagesDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: images directory %s is not a directory", ErrConfigurationMissing, c.ImagesDirectory)
	}
	probe, err := os.CreateTemp(c.ImagesDirectory, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: images directory %s is not writable: %w", ErrConfigurationMissing, c.ImagesDirectory, err)
	}
	probe.Close()
	_ = os.Remove(probe.Name())

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("invalid HTTP timeout %s", c.HTTPTimeout)
	}
	return nil
}

// AbsImagesDirectory returns the images directory as an absolute path.
func (c Config) AbsImagesDirectory() string {
	abs, err := filepath.Abs(c.ImagesDirectory)
	if err != nil {
		return c.ImagesDirectory
	}
	return abs
}
