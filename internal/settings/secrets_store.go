package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SecretsStore persists API keys to a local file kept apart from config.json.
//
// Lookups prefer the environment: DOCPLANNER_<PROVIDER_ID>_API_KEY, then the
// provider type's conventional variable (OPENAI_API_KEY, ANTHROPIC_API_KEY,
// BRAVE_API_KEY), then secrets.json.
type SecretsStore struct {
	path   string
	mu     sync.Mutex
	getenv func(string) string
}

func NewSecretsStore(path string) *SecretsStore {
	return &SecretsStore{path: filepath.Clean(strings.TrimSpace(path)), getenv: os.Getenv}
}

// WithEnv replaces the environment lookup; tests use it to stay hermetic.
func (s *SecretsStore) WithEnv(getenv func(string) string) *SecretsStore {
	if s != nil && getenv != nil {
		s.getenv = getenv
	}
	return s
}

func (s *SecretsStore) Path() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.path)
}

type secretsFile struct {
	SchemaVersion int               `json:"schema_version"`
	AI            *aiSecrets        `json:"ai,omitempty"`
	WebSearch     map[string]string `json:"web_search_api_keys,omitempty"`
}

type aiSecrets struct {
	ProviderAPIKeys map[string]string `json:"provider_api_keys,omitempty"`
}

// ResolveAIProviderAPIKey returns the key for a provider id, consulting the
// environment before secrets.json. ok is false when no key is set anywhere.
func (s *SecretsStore) ResolveAIProviderAPIKey(providerID string, providerType string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("nil secrets store")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return "", false, errors.New("missing provider id")
	}
	if v := s.env(envName(providerID)); v != "" {
		return v, true, nil
	}
	switch strings.ToLower(strings.TrimSpace(providerType)) {
	case "openai":
		if v := s.env("OPENAI_API_KEY"); v != "" {
			return v, true, nil
		}
	case "anthropic":
		if v := s.env("ANTHROPIC_API_KEY"); v != "" {
			return v, true, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	if sf.AI == nil {
		return "", false, nil
	}
	v := strings.TrimSpace(sf.AI.ProviderAPIKeys[providerID])
	return v, v != "", nil
}

func (s *SecretsStore) ResolveWebSearchAPIKey(provider string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("nil secrets store")
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", false, errors.New("missing web search provider")
	}
	if v := s.env(envName(provider)); v != "" {
		return v, true, nil
	}
	if v := s.env(strings.ToUpper(provider) + "_API_KEY"); v != "" {
		return v, true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	v := strings.TrimSpace(sf.WebSearch[provider])
	return v, v != "", nil
}

func (s *SecretsStore) SetAIProviderAPIKey(providerID string, apiKey string) error {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return errors.New("missing provider id")
	}
	return s.update(func(sf *secretsFile) error {
		if sf.AI == nil {
			sf.AI = &aiSecrets{}
		}
		sf.AI.ProviderAPIKeys = setOrClear(sf.AI.ProviderAPIKeys, providerID, apiKey)
		return nil
	})
}

func (s *SecretsStore) SetWebSearchAPIKey(provider string, apiKey string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("missing web search provider")
	}
	return s.update(func(sf *secretsFile) error {
		sf.WebSearch = setOrClear(sf.WebSearch, provider, apiKey)
		return nil
	})
}

// setOrClear stores key under id, or removes id when key is blank.
func setOrClear(m map[string]string, id string, key string) map[string]string {
	key = strings.TrimSpace(key)
	if key == "" {
		delete(m, id)
	} else {
		if m == nil {
			m = make(map[string]string)
		}
		m[id] = key
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func (s *SecretsStore) update(fn func(sf *secretsFile) error) error {
	if s == nil {
		return errors.New("nil secrets store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(sf); err != nil {
		return err
	}
	if sf.AI != nil && len(sf.AI.ProviderAPIKeys) == 0 {
		sf.AI = nil
	}
	return s.saveLocked(sf)
}

func (s *SecretsStore) env(name string) string {
	if s.getenv == nil {
		return ""
	}
	return strings.TrimSpace(s.getenv(name))
}

func envName(id string) string {
	var b strings.Builder
	b.WriteString("DOCPLANNER_")
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_API_KEY")
	return b.String()
}

func (s *SecretsStore) loadLocked() (*secretsFile, error) {
	path := strings.TrimSpace(s.path)
	if path == "" {
		return nil, errors.New("missing secrets path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &secretsFile{SchemaVersion: 1}, nil
		}
		return nil, err
	}
	var sf secretsFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, err
	}
	if sf.SchemaVersion == 0 {
		sf.SchemaVersion = 1
	}
	return &sf, nil
}

func (s *SecretsStore) saveLocked(sf *secretsFile) error {
	path := strings.TrimSpace(s.path)
	if path == "" {
		return errors.New("missing secrets path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
