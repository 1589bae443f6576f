// Package config provides centralized configuration for the nursery suite and twin.
// Configuration comes from environment variables; CLI flags (bound by cmd/nursery)
// override them through Overrides. Validate aggregates every problem at once.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/nursery-suite/internal/errs"
)

const (
	DefaultBaseURL        = "http://localhost:8080"
	defaultRequestTimeout = 10 * time.Second
	defaultArtifactsDir   = "artifacts"
	defaultFeaturesPath   = "features"
	defaultRegion         = "auto"
)

// Config holds all suite configuration.
type Config struct {
	// Target application
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec float64 // 0 disables pacing

	// Setup-only admin credentials (seeding a sale when none exists)
	AdminUsername string
	AdminPassword string

	// Runner
	FeaturesPath string
	Tags         string
	Format       string
	Concurrency  int
	Headless     bool
	LogLevel     string

	// Artifacts and reporting
	ArtifactsDir string
	ReportPath   string

	// Optional S3 upload of artifacts (AWS_ env vars)
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	ArtifactsBucket    string
	ArtifactsPublicURL string

	// Twin
	TwinListenAddr string
	TwinJWTSecret  string
	TwinSeedFile   string
	TwinRPS        float64
	TwinBurst      int
}

// Overrides carries CLI flag values. Zero values leave the env-derived setting alone.
type Overrides struct {
	BaseURL      string
	FeaturesPath string
	Tags         string
	Format       string
	Concurrency  int
	ReportPath   string
	ListenAddr   string
	SeedFile     string
	Headed       bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads configuration from the environment, applies overrides and validates.
func Load(o Overrides) (*Config, error) {
	cfg := FromEnv()
	cfg.Apply(o)
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.Configuration, "invalid configuration", err)
	}
	return cfg, nil
}

// FromEnv reads configuration from environment variables without validating.
func FromEnv() *Config {
	cfg := &Config{}

	cfg.BaseURL = strings.TrimSpace(os.Getenv("NURSERY_BASE_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = getEnvOrDefault("API_BASE_URL", DefaultBaseURL)
	}
	cfg.RequestTimeout = parseDurationOrDefault("NURSERY_REQUEST_TIMEOUT", defaultRequestTimeout)
	cfg.RequestsPerSec = parseFloat64OrDefault("NURSERY_REQUESTS_PER_SECOND", 0)

	cfg.AdminUsername = strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	cfg.FeaturesPath = getEnvOrDefault("NURSERY_FEATURES", defaultFeaturesPath)
	cfg.Tags = strings.TrimSpace(os.Getenv("NURSERY_TAGS"))
	cfg.Format = getEnvOrDefault("NURSERY_FORMAT", "pretty")
	cfg.Concurrency = parseIntOrDefault("NURSERY_CONCURRENCY", 1)
	cfg.Headless = parseBoolOrDefault("NURSERY_HEADLESS", true)
	cfg.LogLevel = getEnvOrDefault("NURSERY_LOG_LEVEL", "info")

	cfg.ArtifactsDir = getEnvOrDefault("NURSERY_ARTIFACTS_DIR", defaultArtifactsDir)
	cfg.ReportPath = strings.TrimSpace(os.Getenv("NURSERY_REPORT_PATH"))

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.ArtifactsBucket = strings.TrimSpace(os.Getenv("ARTIFACTS_BUCKET"))
	cfg.ArtifactsPublicURL = strings.TrimSpace(os.Getenv("ARTIFACTS_PUBLIC_URL"))
	if cfg.ArtifactsPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.ArtifactsBucket != "" {
		cfg.ArtifactsPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.ArtifactsBucket
	}

	cfg.TwinListenAddr = getEnvOrDefault("TWIN_LISTEN_ADDR", ":8080")
	cfg.TwinJWTSecret = os.Getenv("TWIN_JWT_SECRET")
	cfg.TwinSeedFile = strings.TrimSpace(os.Getenv("TWIN_SEED_FILE"))
	cfg.TwinRPS = parseFloat64OrDefault("TWIN_RATE_LIMIT_RPS", 1000)
	cfg.TwinBurst = parseIntOrDefault("TWIN_RATE_LIMIT_BURST", 2000)

	return cfg
}

// Apply copies non-zero override values onto the config.
func (c *Config) Apply(o Overrides) {
	if v := strings.TrimSpace(o.BaseURL); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(o.FeaturesPath); v != "" {
		c.FeaturesPath = v
	}
	if v := strings.TrimSpace(o.Tags); v != "" {
		c.Tags = v
	}
	if v := strings.TrimSpace(o.Format); v != "" {
		c.Format = v
	}
	if o.Concurrency > 0 {
		c.Concurrency = o.Concurrency
	}
	if v := strings.TrimSpace(o.ReportPath); v != "" {
		c.ReportPath = v
	}
	if v := strings.TrimSpace(o.ListenAddr); v != "" {
		c.TwinListenAddr = v
	}
	if v := strings.TrimSpace(o.SeedFile); v != "" {
		c.TwinSeedFile = v
	}
	if o.Headed {
		c.Headless = false
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	var problems []string

	if c.BaseURL == "" {
		problems = append(problems, "NURSERY_BASE_URL must not be empty")
	} else if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		problems = append(problems, "NURSERY_BASE_URL must start with http:// or https://")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "NURSERY_REQUEST_TIMEOUT must be positive")
	}
	if c.RequestsPerSec < 0 {
		problems = append(problems, "NURSERY_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "NURSERY_CONCURRENCY must be at least 1")
	}

	// Admin setup credentials are optional but must come as a pair.
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		problems = append(problems, "ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	if c.ArtifactsBucket != "" {
		if c.AWSAccessKeyID == "" || c.AWSSecretAccessKey == "" {
			problems = append(problems, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required when ARTIFACTS_BUCKET is set")
		}
	}

	if c.TwinRPS <= 0 {
		problems = append(problems, "TWIN_RATE_LIMIT_RPS must be positive")
	}
	if c.TwinBurst <= 0 {
		problems = append(problems, "TWIN_RATE_LIMIT_BURST must be positive")
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// HasSetupAdmin reports whether setup-only admin credentials are configured.
func (c *Config) HasSetupAdmin() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

// ArtifactUploadEnabled reports whether artifacts should also go to S3.
func (c *Config) ArtifactUploadEnabled() bool {
	return c.ArtifactsBucket != ""
}

// PrintSummary prints a human-readable summary of the run configuration to stderr.
func (c *Config) PrintSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "nursery suite")
	fmt.Fprintf(os.Stderr, "  Target:       %s\n", c.BaseURL)
	fmt.Fprintf(os.Stderr, "  Features:     %s\n", c.FeaturesPath)
	if c.Tags != "" {
		fmt.Fprintf(os.Stderr, "  Tags:         %s\n", c.Tags)
	}
	fmt.Fprintf(os.Stderr, "  Timeout:      %s\n", c.RequestTimeout)
	if c.HasSetupAdmin() {
		fmt.Fprintf(os.Stderr, "  Setup admin:  %s\n", c.AdminUsername)
	} else {
		fmt.Fprintln(os.Stderr, "  Setup admin:  (not configured)")
	}
	if c.ArtifactUploadEnabled() {
		fmt.Fprintf(os.Stderr, "  Artifacts:    %s + s3://%s\n", c.ArtifactsDir, c.ArtifactsBucket)
	} else {
		fmt.Fprintf(os.Stderr, "  Artifacts:    %s\n", c.ArtifactsDir)
	}
	fmt.Fprintln(os.Stderr, "")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
