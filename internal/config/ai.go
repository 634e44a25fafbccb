package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// AIConfig lists the reasoning providers docplanner may call. The model used
// for a run is addressed as "<provider_id>/<model_name>"; exactly one model
// across all providers carries is_default. API keys live in secrets.json.
type AIConfig struct {
	Providers []AIProvider `json:"providers,omitempty"`

	// WebSearchProvider is "brave" (default) or "disabled".
	WebSearchProvider string `json:"web_search_provider,omitempty"`

	// MaxOutputTokens caps each completion. Defaults to 4096.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

type AIProvider struct {
	// ID keys secrets and model ids; it cannot contain "/".
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Type selects the wire protocol, see providerTypes.
	Type string `json:"type"`
	// BaseURL is required for openai_compatible gateways.
	BaseURL string            `json:"base_url,omitempty"`
	Models  []AIProviderModel `json:"models,omitempty"`
}

type AIProviderModel struct {
	ModelName string `json:"model_name"`
	IsDefault bool   `json:"is_default,omitempty"`
}

const (
	WebSearchBrave    = "brave"
	WebSearchDisabled = "disabled"

	defaultMaxOutputTokens = 4096
)

var providerTypes = []string{"openai", "anthropic", "openai_compatible"}

// ModelRef is a parsed "<provider_id>/<model_name>" id.
type ModelRef struct {
	Provider string
	Model    string
}

func (r ModelRef) String() string { return r.Provider + "/" + r.Model }

// ParseModelRef splits a model id. Both halves must be non-empty.
func ParseModelRef(id string) (ModelRef, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(id), "/")
	ref := ModelRef{Provider: strings.TrimSpace(provider), Model: strings.TrimSpace(model)}
	if !ok || ref.Provider == "" || ref.Model == "" {
		return ModelRef{}, fmt.Errorf("model id %q is not <provider_id>/<model_name>", id)
	}
	return ref, nil
}

func (c *AIConfig) Validate() error {
	if c == nil {
		return errors.New("nil ai config")
	}
	if v := normalizeWebSearch(c.WebSearchProvider); v != "" && v != WebSearchBrave && v != WebSearchDisabled {
		return fmt.Errorf("web_search_provider %q is not supported", c.WebSearchProvider)
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must not be negative (got %d)", c.MaxOutputTokens)
	}
	if len(c.Providers) == 0 {
		return errors.New("no providers configured")
	}

	ids := map[string]bool{}
	defaults := 0
	for i, p := range c.Providers {
		n, err := p.validate()
		if err != nil {
			return fmt.Errorf("provider #%d: %w", i+1, err)
		}
		id := strings.TrimSpace(p.ID)
		if ids[id] {
			return fmt.Errorf("provider #%d: id %q is used twice", i+1, id)
		}
		ids[id] = true
		defaults += n
	}
	switch defaults {
	case 1:
		return nil
	case 0:
		return errors.New("no model is marked is_default")
	default:
		return fmt.Errorf("%d models are marked is_default, want exactly one", defaults)
	}
}

// validate checks one provider and reports how many of its models are marked default.
func (p AIProvider) validate() (int, error) {
	id := strings.TrimSpace(p.ID)
	switch {
	case id == "":
		return 0, errors.New("id is empty")
	case strings.Contains(id, "/"):
		return 0, fmt.Errorf("id %q contains /", id)
	}
	typ := strings.TrimSpace(p.Type)
	if !slices.Contains(providerTypes, typ) {
		return 0, fmt.Errorf("%s: type %q is not one of %s", id, typ, strings.Join(providerTypes, ", "))
	}
	if err := checkBaseURL(typ, p.BaseURL); err != nil {
		return 0, fmt.Errorf("%s: %w", id, err)
	}
	if len(p.Models) == 0 {
		return 0, fmt.Errorf("%s: no models listed", id)
	}

	names := map[string]bool{}
	defaults := 0
	for _, m := range p.Models {
		name := strings.TrimSpace(m.ModelName)
		switch {
		case name == "":
			return 0, fmt.Errorf("%s: model with empty model_name", id)
		case strings.Contains(name, "/"):
			return 0, fmt.Errorf("%s: model_name %q contains /", id, name)
		case names[name]:
			return 0, fmt.Errorf("%s: model_name %q listed twice", id, name)
		}
		names[name] = true
		if m.IsDefault {
			defaults++
		}
	}
	return defaults, nil
}

func checkBaseURL(typ string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if typ == "openai_compatible" {
			return errors.New("base_url is required for openai_compatible")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("base_url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url %q has no host", raw)
	}
	return nil
}

// DefaultModelID returns the id of the model marked is_default.
func (c *AIConfig) DefaultModelID() (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Providers {
		id := strings.TrimSpace(p.ID)
		idx := slices.IndexFunc(p.Models, func(m AIProviderModel) bool {
			return m.IsDefault && strings.TrimSpace(m.ModelName) != ""
		})
		if id != "" && idx >= 0 {
			return ModelRef{Provider: id, Model: strings.TrimSpace(p.Models[idx].ModelName)}.String(), true
		}
	}
	return "", false
}

// ResolveModel looks up a model id; an empty id means the default model.
func (c *AIConfig) ResolveModel(modelID string) (AIProvider, string, error) {
	if c == nil {
		return AIProvider{}, "", errors.New("nil ai config")
	}
	if strings.TrimSpace(modelID) == "" {
		def, ok := c.DefaultModelID()
		if !ok {
			return AIProvider{}, "", errors.New("no default model configured")
		}
		modelID = def
	}
	ref, err := ParseModelRef(modelID)
	if err != nil {
		return AIProvider{}, "", err
	}
	i := slices.IndexFunc(c.Providers, func(p AIProvider) bool { return strings.TrimSpace(p.ID) == ref.Provider })
	if i < 0 {
		return AIProvider{}, "", fmt.Errorf("provider %q is not configured", ref.Provider)
	}
	p := c.Providers[i]
	if !slices.ContainsFunc(p.Models, func(m AIProviderModel) bool { return strings.TrimSpace(m.ModelName) == ref.Model }) {
		return AIProvider{}, "", fmt.Errorf("provider %q has no model %q", ref.Provider, ref.Model)
	}
	return p, ref.Model, nil
}

func normalizeWebSearch(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func (c *AIConfig) EffectiveWebSearchProvider() string {
	if c != nil && normalizeWebSearch(c.WebSearchProvider) == WebSearchDisabled {
		return WebSearchDisabled
	}
	return WebSearchBrave
}

func (c *AIConfig) EffectiveMaxOutputTokens() int {
	if c == nil || c.MaxOutputTokens <= 0 {
		return defaultMaxOutputTokens
	}
	return c.MaxOutputTokens
}
