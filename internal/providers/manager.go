package providers

import (
	"fmt"
	"strings"
	"time"

	"docqa/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type Manager struct {
	llmProviders []NamedLLMProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	return m, nil
}

// NewStaticManager wraps already constructed providers, keyed by name.
func NewStaticManager(named ...NamedLLMProvider) *Manager {
	return &Manager{llmProviders: named}
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

func (m *Manager) FindLLMProviderByName(name string) (LLMProvider, ProviderRef, bool) {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return nil, ProviderRef{}, false
	}
	for i := range m.llmProviders {
		if strings.ToLower(m.llmProviders[i].Ref.Name) == target {
			return m.llmProviders[i].Provider, m.llmProviders[i].Ref, true
		}
	}
	return nil, ProviderRef{}, false
}

func buildProvider(ref ProviderRef, cfg config.Config) (LLMProvider, error) {
	timeout := time.Duration(cfg.ProviderTimeout) * time.Second
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(), nil
	case "ollama":
		model := cfg.OllamaModel
		if ref.KeyAlias != "" {
			model = ref.KeyAlias
		}
		return NewOllamaProvider(ref.KeyAlias, cfg.OllamaBaseURL, model, timeout), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias, GroqOptions{
			ProxyURL: cfg.GroqProxyURL,
			BaseURL:  cfg.GroqBaseURL,
			Model:    cfg.GroqModel,
			Timeout:  timeout,
		}), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias, cfg.OpenAIBaseURL, cfg.OpenAIModel, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
