package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := &Config{AI: validAIConfig(), Workers: 4, StrictEvidence: true, LogFormat: "json"}
	if err := Save(p, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st, err := os.Stat(p)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("perm=%o, want 600", st.Mode().Perm())
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Workers != 4 || !got.StrictEvidence || got.EffectiveLogFormat() != "json" {
		t.Fatalf("loaded=%+v", got)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(`{"ai":{"providers":[]},"workers":2}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestConfigValidate_Bounds(t *testing.T) {
	t.Parallel()

	cases := []*Config{
		{AI: validAIConfig(), Workers: -1},
		{AI: validAIConfig(), Workers: 1000},
		{AI: validAIConfig(), MaxQueryChars: -5},
		{AI: validAIConfig(), Retry: &RetryConfig{MaxAttempts: 99}},
		{AI: validAIConfig(), Retry: &RetryConfig{BaseDelayMs: -1}},
		{AI: validAIConfig(), LogFormat: "xml"},
		{AI: validAIConfig(), LogLevel: "loud"},
		{},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestConfig_EffectivePaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")

	cfg := &Config{}
	if got := cfg.EffectiveStateDir(cfgPath); got != dir {
		t.Fatalf("EffectiveStateDir=%q, want %q", got, dir)
	}
	if got := cfg.EffectiveCachePath(cfgPath); got != filepath.Join(dir, "cache.sqlite") {
		t.Fatalf("EffectiveCachePath=%q", got)
	}
	if got := cfg.EffectiveOutputDir(cfgPath); got != filepath.Join(dir, "runs") {
		t.Fatalf("EffectiveOutputDir=%q", got)
	}

	cfg = &Config{StateDir: "state", ArtifactsDir: "/abs/artifacts", StrategiesPath: "strategies.yaml"}
	if got := cfg.EffectiveArtifactsDir(cfgPath); got != "/abs/artifacts" {
		t.Fatalf("EffectiveArtifactsDir=%q", got)
	}
	if got := cfg.EffectiveCachePath(cfgPath); got != filepath.Join(dir, "state", "cache.sqlite") {
		t.Fatalf("EffectiveCachePath=%q", got)
	}
	if got := cfg.EffectiveStrategiesPath(cfgPath); got != filepath.Join(dir, "strategies.yaml") {
		t.Fatalf("EffectiveStrategiesPath=%q", got)
	}
}

func TestConfig_EffectiveRetryPolicy(t *testing.T) {
	t.Parallel()

	var nilCfg *Config
	if p := nilCfg.EffectiveRetryPolicy(); p.CallTimeout != 2*time.Minute || p.Attempts() != 3 {
		t.Fatalf("default policy=%+v", p)
	}
	cfg := &Config{Retry: &RetryConfig{MaxAttempts: 5, BaseDelayMs: 100, MaxDelayMs: 1000, CallTimeoutMs: 3000}}
	p := cfg.EffectiveRetryPolicy()
	if p.Attempts() != 5 || p.BaseDelay != 100*time.Millisecond || p.MaxDelay != time.Second || p.CallTimeout != 3*time.Second {
		t.Fatalf("policy=%+v", p)
	}
	if cfg.EffectiveMaxQueryChars() != 400 {
		t.Fatalf("EffectiveMaxQueryChars=%d", cfg.EffectiveMaxQueryChars())
	}
}
