package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noEnv(string) string { return "" }

func TestSecretsStore_SetAndResolve(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "secrets.json")
	s := NewSecretsStore(p).WithEnv(noEnv)
	if err := s.SetAIProviderAPIKey("openai", "  sk-file  "); err != nil {
		t.Fatalf("SetAIProviderAPIKey: %v", err)
	}
	if err := s.SetWebSearchAPIKey("Brave", "bsa-file"); err != nil {
		t.Fatalf("SetWebSearchAPIKey: %v", err)
	}

	key, ok, err := s.ResolveAIProviderAPIKey("openai", "openai")
	if err != nil || !ok || key != "sk-file" {
		t.Fatalf("ai key=%q ok=%v err=%v", key, ok, err)
	}
	key, ok, err = s.ResolveWebSearchAPIKey("brave")
	if err != nil || !ok || key != "bsa-file" {
		t.Fatalf("search key=%q ok=%v err=%v", key, ok, err)
	}

	st, err := os.Stat(p)
	if err != nil || st.Mode().Perm() != 0o600 {
		t.Fatalf("secrets perm: %v %v", st, err)
	}
}

func TestSecretsStore_EnvironmentWins(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"DOCPLANNER_MY_GATEWAY_API_KEY": "sk-gateway",
		"ANTHROPIC_API_KEY":             "sk-ant-env",
		"BRAVE_API_KEY":                 "bsa-env",
	}
	s := NewSecretsStore(filepath.Join(t.TempDir(), "secrets.json")).WithEnv(func(k string) string { return env[k] })
	if err := s.SetAIProviderAPIKey("claude", "sk-ant-file"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if key, _, _ := s.ResolveAIProviderAPIKey("my-gateway", "openai_compatible"); key != "sk-gateway" {
		t.Fatalf("gateway key=%q", key)
	}
	if key, _, _ := s.ResolveAIProviderAPIKey("claude", "anthropic"); key != "sk-ant-env" {
		t.Fatalf("anthropic key=%q, want env value", key)
	}
	if key, _, _ := s.ResolveWebSearchAPIKey("brave"); key != "bsa-env" {
		t.Fatalf("brave key=%q", key)
	}
}

func TestSecretsStore_ClearAndMissing(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "secrets.json")
	s := NewSecretsStore(p).WithEnv(noEnv)
	if _, ok, err := s.ResolveAIProviderAPIKey("openai", "openai"); ok || err != nil {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
	_ = s.SetAIProviderAPIKey("openai", "sk")
	if err := s.SetAIProviderAPIKey("openai", ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.ResolveAIProviderAPIKey("openai", "openai"); ok {
		t.Fatalf("key should be cleared")
	}
	b, _ := os.ReadFile(p)
	if strings.Contains(string(b), "provider_api_keys") {
		t.Fatalf("empty key map should be dropped: %s", b)
	}
	if _, _, err := s.ResolveAIProviderAPIKey(" ", "openai"); err == nil {
		t.Fatalf("blank provider id should fail")
	}
}
