package providers

import (
	"context"
	"strings"
	"testing"

	"docqa/internal/config"
)

func TestNewManagerBuildsList(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLMProviders = "ollama|groq:team|mock"
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.LLMCount() != 3 {
		t.Fatalf("expected 3 providers, got %d", m.LLMCount())
	}
	p, ref, ok := m.FindLLMProviderByName("GROQ")
	if !ok || ref.KeyAlias != "team" {
		t.Fatalf("lookup failed: %+v", ref)
	}
	if _, isGroq := p.(*GroqProvider); !isGroq {
		t.Fatalf("unexpected type %T", p)
	}
	if _, ok := any(m.llmProviders[0].Provider).(Prober); !ok {
		t.Fatal("ollama must implement Prober")
	}
}

func TestNewManagerRejectsUnknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLMProviders = "ollama|bard"
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestMockProviderPinpoint(t *testing.T) {
	prompt := "...\nPASSAGES:\n[Document: a.pdf, Page: 2]\nThe deadline is March 1st.\n"
	var streamed strings.Builder
	resp, _, err := NewMockProvider().Generate(context.Background(), GenerateRequest{Operation: "pinpoint", Prompt: prompt, OnToken: func(s string) { streamed.WriteString(s) }})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != `{"quote": "The deadline is March 1st."}` {
		t.Fatalf("unexpected mock pinpoint %q", resp.Text)
	}
	if streamed.String() != resp.Text {
		t.Fatalf("streamed tokens must rebuild the text: %q", streamed.String())
	}
}
