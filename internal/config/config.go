package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floegence/docplanner/internal/retry"
)

// Config is the on-disk configuration for docplanner.
//
// API keys never live here: they come from the environment or secrets.json
// next to the config file.
type Config struct {
	AI *AIConfig `json:"ai"`

	// StateDir holds the cache index and the run journal.
	// Defaults to the directory containing config.json.
	StateDir string `json:"state_dir,omitempty"`
	// OutputDir receives <run_id>/final.md. Defaults to <state_dir>/runs.
	OutputDir string `json:"output_dir,omitempty"`
	// ArtifactsDir receives pipeline artifacts. Defaults to <state_dir>/artifacts.
	ArtifactsDir string `json:"artifacts_dir,omitempty"`
	// CachePath overrides <state_dir>/cache.sqlite.
	CachePath string `json:"cache_path,omitempty"`
	// CacheVersion tags cache entries; changing it invalidates older ones.
	CacheVersion string `json:"cache_version,omitempty"`
	// StrategiesPath points at a YAML extraction strategy file. Empty uses
	// the built-in strategies.
	StrategiesPath string `json:"strategies_path,omitempty"`

	// Workers bounds per-document concurrency. 0 picks the CPU count (max 8).
	Workers int `json:"workers,omitempty"`
	// MaxQueryChars bounds web search queries. Defaults to 400.
	MaxQueryChars int `json:"max_query_chars,omitempty"`
	// StrictEvidence turns unresolved evidence references into run failures.
	StrictEvidence bool `json:"strict_evidence,omitempty"`

	Retry *RetryConfig `json:"retry,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

type RetryConfig struct {
	MaxAttempts   int `json:"max_attempts,omitempty"`
	BaseDelayMs   int `json:"base_delay_ms,omitempty"`
	MaxDelayMs    int `json:"max_delay_ms,omitempty"`
	CallTimeoutMs int `json:"call_timeout_ms,omitempty"`
}

const (
	defaultMaxQueryChars = 400
	maxWorkers           = 64
	maxRetryAttempts     = 10
	defaultCallTimeout   = 120 * time.Second
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.AI == nil {
		return errors.New("missing ai")
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("invalid ai: %w", err)
	}
	if c.Workers < 0 || c.Workers > maxWorkers {
		return fmt.Errorf("invalid workers %d (must be in [0,%d])", c.Workers, maxWorkers)
	}
	if c.MaxQueryChars < 0 {
		return fmt.Errorf("invalid max_query_chars %d", c.MaxQueryChars)
	}
	if r := c.Retry; r != nil {
		if r.MaxAttempts < 0 || r.MaxAttempts > maxRetryAttempts {
			return fmt.Errorf("invalid retry.max_attempts %d (must be in [0,%d])", r.MaxAttempts, maxRetryAttempts)
		}
		if r.BaseDelayMs < 0 || r.MaxDelayMs < 0 || r.CallTimeoutMs < 0 {
			return errors.New("invalid retry: durations must not be negative")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// DefaultConfigPath returns the default config path:
//
//	~/.docplanner/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "docplanner.config.json"
	}
	return filepath.Join(home, ".docplanner", "config.json")
}

// SecretsPath returns secrets.json next to the config file.
func SecretsPath(configPath string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(configPath)), "secrets.json")
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// EffectiveStateDir resolves state_dir relative to the config file location.
func (c *Config) EffectiveStateDir(configPath string) string {
	base := filepath.Dir(filepath.Clean(configPath))
	if c == nil || strings.TrimSpace(c.StateDir) == "" {
		return base
	}
	return resolvePath(base, c.StateDir)
}

func (c *Config) EffectiveOutputDir(configPath string) string {
	state := c.EffectiveStateDir(configPath)
	if c == nil || strings.TrimSpace(c.OutputDir) == "" {
		return filepath.Join(state, "runs")
	}
	return resolvePath(state, c.OutputDir)
}

func (c *Config) EffectiveArtifactsDir(configPath string) string {
	state := c.EffectiveStateDir(configPath)
	if c == nil || strings.TrimSpace(c.ArtifactsDir) == "" {
		return filepath.Join(state, "artifacts")
	}
	return resolvePath(state, c.ArtifactsDir)
}

func (c *Config) EffectiveCachePath(configPath string) string {
	state := c.EffectiveStateDir(configPath)
	if c == nil || strings.TrimSpace(c.CachePath) == "" {
		return filepath.Join(state, "cache.sqlite")
	}
	return resolvePath(state, c.CachePath)
}

func (c *Config) EffectiveStrategiesPath(configPath string) string {
	if c == nil || strings.TrimSpace(c.StrategiesPath) == "" {
		return ""
	}
	return resolvePath(filepath.Dir(filepath.Clean(configPath)), c.StrategiesPath)
}

func (c *Config) EffectiveMaxQueryChars() int {
	if c == nil || c.MaxQueryChars <= 0 {
		return defaultMaxQueryChars
	}
	return c.MaxQueryChars
}

func (c *Config) EffectiveWorkers() int {
	if c == nil || c.Workers <= 0 {
		return 0
	}
	if c.Workers > maxWorkers {
		return maxWorkers
	}
	return c.Workers
}

// EffectiveRetryPolicy maps the retry block onto retry.Policy. A missing
// call timeout defaults to two minutes.
func (c *Config) EffectiveRetryPolicy() retry.Policy {
	p := retry.Policy{CallTimeout: defaultCallTimeout}
	if c == nil || c.Retry == nil {
		return p
	}
	r := c.Retry
	p.MaxAttempts = r.MaxAttempts
	p.BaseDelay = time.Duration(r.BaseDelayMs) * time.Millisecond
	p.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
	if r.CallTimeoutMs > 0 {
		p.CallTimeout = time.Duration(r.CallTimeoutMs) * time.Millisecond
	}
	return p
}

func (c *Config) EffectiveLogFormat() string {
	if c == nil {
		return "text"
	}
	if strings.ToLower(strings.TrimSpace(c.LogFormat)) == "json" {
		return "json"
	}
	return "text"
}

func (c *Config) EffectiveLogLevel() string {
	if c == nil || strings.TrimSpace(c.LogLevel) == "" {
		return "info"
	}
	return strings.ToLower(strings.TrimSpace(c.LogLevel))
}

func resolvePath(base string, p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "~"+string(filepath.Separator)) || p == "~" {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
