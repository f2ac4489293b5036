package llm

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestNewAnthropicClient_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := NewAnthropicClient("", "", 0); err == nil {
		t.Error("expected error when no API key is available")
	}
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	c, err := NewAnthropicClient("test-key", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != anthropic.Model("claude-sonnet-4-5") {
		t.Errorf("expected default model, got %s", c.model)
	}
	if c.maxTokens != defaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", c.maxTokens)
	}
}

func TestNewAnthropicClient_Overrides(t *testing.T) {
	c, err := NewAnthropicClient("test-key", "claude-custom-model", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(c.model) != "claude-custom-model" {
		t.Errorf("model override not applied: %s", c.model)
	}
	if c.maxTokens != 1024 {
		t.Errorf("max tokens override not applied: %d", c.maxTokens)
	}
}

func TestParams_SystemAndRequestMaxTokens(t *testing.T) {
	c, err := NewAnthropicClient("test-key", "", 2048)
	if err != nil {
		t.Fatal(err)
	}

	p := c.params(Request{System: "be brief", Prompt: "hello", MaxTokens: 16})
	if p.MaxTokens != 16 {
		t.Errorf("per-request max tokens should win, got %d", p.MaxTokens)
	}
	if len(p.System) != 1 || p.System[0].Text != "be brief" {
		t.Errorf("system prompt not set: %+v", p.System)
	}

	p = c.params(Request{Prompt: "hello"})
	if p.MaxTokens != 2048 {
		t.Errorf("client max tokens should apply when request omits one, got %d", p.MaxTokens)
	}
	if len(p.System) != 0 {
		t.Errorf("system prompt should be absent: %+v", p.System)
	}
}
