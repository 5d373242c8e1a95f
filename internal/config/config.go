// Package config loads the minimization policy file and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase names accepted in Minimize.Order.
const (
	PhaseHeaders = "headers"
	PhaseBody    = "body"
)

// Config holds the full harslim configuration.
type Config struct {
	InputHAR  string `yaml:"input_har"`
	OutputHAR string `yaml:"output_har"`
	Report    string `yaml:"report"`

	// MaxTestsPerRequest is the global per-request probe budget shared by
	// the header and body reduction phases.
	MaxTestsPerRequest int `yaml:"max_tests_per_request"`

	// Concurrency bounds how many records are minimized in parallel.
	Concurrency int `yaml:"concurrency"`

	Client   Client   `yaml:"client"`
	Filter   Filter   `yaml:"filter"`
	Scope    Scope    `yaml:"scope"`
	Compare  Compare  `yaml:"compare"`
	Minimize Minimize `yaml:"minimize"`
	Logging  Logging  `yaml:"logging"`
}

// Client configures the rate-limited transport.
type Client struct {
	TimeoutMS         int     `yaml:"timeout_ms"`
	VerifyTLS         bool    `yaml:"verify_tls"`
	Proxy             string  `yaml:"proxy"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// MemoizeProbes caches snapshots by request hash. Only safe against
	// stateless endpoints; off by default.
	MemoizeProbes  bool `yaml:"memoize_probes"`
	ProbeCacheSize int  `yaml:"probe_cache_size"`
}

// Timeout returns the per-exchange timeout as a duration.
func (c Client) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Filter selects which captured records are minimized.
type Filter struct {
	Methods    []string `yaml:"methods"`
	Hosts      []string `yaml:"hosts"`
	URLRegex   []string `yaml:"url_regex"`
	IndexRange []int    `yaml:"index_range"` // [lo, hi], inclusive
}

// Scope further restricts records to an explicit URL allow list or
// matching regexes. An empty scope admits every record.
type Scope struct {
	IncludeURLs  []string `yaml:"include_urls"`
	IncludeRegex []string `yaml:"include_regex"`
}

// Compare configures the response equivalence oracle.
type Compare struct {
	StatusCode      bool     `yaml:"status_code"`
	LengthCheck     bool     `yaml:"length_check"`
	LengthTolerance float64  `yaml:"length_tolerance"`
	NeedAll         []string `yaml:"need_all"`
	NeedAny         []string `yaml:"need_any"`
	NeedJQ          []string `yaml:"need_jq"`
	Regex           []string `yaml:"regex"`
	Logic           string   `yaml:"logic"` // "AND" (default) or "OR"
}

// HeaderPolicy configures the header reduction phase.
type HeaderPolicy struct {
	Enabled   bool     `yaml:"enabled"`
	Protected []string `yaml:"protected"`
	Ignore    []string `yaml:"ignore"`

	// CandidateRegex, when set, restricts candidates to matching names;
	// everything else is treated as fixed.
	CandidateRegex []string `yaml:"candidate_regex"`
}

// BodyPolicy configures the body reduction phase.
type BodyPolicy struct {
	Enabled       bool     `yaml:"enabled"`
	Mode          string   `yaml:"mode"` // "auto" (default), "json", "form"
	ProtectedKeys []string `yaml:"protected_keys"`
	OnlyKeys      []string `yaml:"only_keys"`

	// RemovedMeansBlank keeps excluded candidate keys in the rebuilt body
	// with empty values instead of omitting them.
	RemovedMeansBlank bool `yaml:"removed_means_blank"`

	// TryBlankValues enables the unbounded refinement pass that blanks
	// surviving values after a matched reduction.
	TryBlankValues bool `yaml:"try_blank_values"`
}

// Minimize configures phase ordering and the per-phase policies.
type Minimize struct {
	Order   []string     `yaml:"order"`
	Headers HeaderPolicy `yaml:"headers"`
	Body    BodyPolicy   `yaml:"body"`
}

// Logging mirrors the logging package configuration.
type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when the policy file leaves a
// field unset.
func Default() *Config {
	return &Config{
		InputHAR:           "capture.har",
		OutputHAR:          "capture.min.har",
		Report:             "report.json",
		MaxTestsPerRequest: 60,
		Concurrency:        1,
		Client: Client{
			TimeoutMS:         10000,
			VerifyTLS:         true,
			RequestsPerSecond: 5,
			ProbeCacheSize:    512,
		},
		Compare: Compare{
			StatusCode:      true,
			LengthCheck:     true,
			LengthTolerance: 0.1,
			Logic:           "AND",
		},
		Minimize: Minimize{
			Order: []string{PhaseHeaders, PhaseBody},
			Headers: HeaderPolicy{
				Enabled:   true,
				Protected: []string{"host", "content-type", "content-length"},
			},
			Body: BodyPolicy{
				Enabled: true,
				Mode:    "auto",
			},
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load reads the policy file at path, validates it against the embedded
// schema and applies HARSLIM_* environment overrides. An empty path skips
// the file and yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := validate(data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides scalar fields from HARSLIM_* environment variables.
func (c *Config) applyEnv() {
	c.InputHAR = getEnvString("HARSLIM_INPUT_HAR", c.InputHAR)
	c.OutputHAR = getEnvString("HARSLIM_OUTPUT_HAR", c.OutputHAR)
	c.Report = getEnvString("HARSLIM_REPORT", c.Report)
	c.MaxTestsPerRequest = getEnvInt("HARSLIM_MAX_TESTS", c.MaxTestsPerRequest)
	c.Concurrency = getEnvInt("HARSLIM_CONCURRENCY", c.Concurrency)
	c.Client.TimeoutMS = getEnvInt("HARSLIM_TIMEOUT_MS", c.Client.TimeoutMS)
	c.Client.Proxy = getEnvString("HARSLIM_PROXY", c.Client.Proxy)
	c.Client.VerifyTLS = getEnvBool("HARSLIM_VERIFY_TLS", c.Client.VerifyTLS)
	c.Client.RequestsPerSecond = getEnvFloat("HARSLIM_RPS", c.Client.RequestsPerSecond)
	c.Logging.Level = getEnvString("HARSLIM_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvString("HARSLIM_LOG_FILE", c.Logging.File)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}
