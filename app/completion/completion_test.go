package completion

import (
	"context"
	"testing"
	"time"

	"github.com/sfkse/rewriteit/app/config"
)

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(context.Background(), config.CompletionConfig{
		Provider: "openrouter",
		APIKey:   "k",
		BaseURL:  "https://openrouter.example/api/v1",
		Model:    "openai/gpt-4o-mini",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if _, ok := c.(*OpenRouter); !ok {
		t.Fatalf("expected *OpenRouter, got %T", c)
	}

	if _, err := New(context.Background(), config.CompletionConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewGeminiModelFallback(t *testing.T) {
	g, err := NewGemini(context.Background(), "k", "openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewGemini error = %v", err)
	}
	defer g.Close()
	if g.model != defaultGeminiModel {
		t.Fatalf("model = %q, want %q", g.model, defaultGeminiModel)
	}
}
