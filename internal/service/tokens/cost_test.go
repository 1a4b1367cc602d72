package tokens

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/service/llm"
	"testing"
)

func testCostCatalog() *config.ModelCatalog {
	return config.NewStaticModelCatalog("openrouter/base", 1.5, []config.Model{
		{ID: "openrouter/base", Name: "Base", Provider: "openrouter"},
		{ID: "openrouter/premium", Name: "Premium", Provider: "openrouter", Multiplier: 2.5},
		{ID: "kluster/cheap", Name: "Cheap", Provider: "kluster", Multiplier: 0.8},
	}, nil)
}

func TestEffectiveCost(t *testing.T) {
	engine := NewCostEngine(testCostCatalog())

	tests := []struct {
		name          string
		model         string
		rawTokens     int
		usedWebSearch bool
		expected      int
	}{
		{"base model charges face value", "openrouter/base", 1000, false, 1000},
		{"premium model scales up", "openrouter/premium", 1000, false, 2500},
		{"cheap model scales down", "kluster/cheap", 1000, false, 800},
		{"web search surcharge applies", "openrouter/base", 1000, true, 1500},
		{"multipliers compose", "openrouter/premium", 1000, true, 3750},
		{"unlisted model charges face value", "unknown/model", 1000, false, 1000},
		{"rounding is to nearest", "kluster/cheap", 3, false, 2},
		{"zero tokens cost nothing", "openrouter/premium", 0, true, 0},
		{"negative tokens cost nothing", "openrouter/premium", -10, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := engine.EffectiveCost(tt.model, tt.rawTokens, tt.usedWebSearch)
			if cost != tt.expected {
				t.Errorf("EffectiveCost(%q, %d, %v) = %d, expected %d", tt.model, tt.rawTokens, tt.usedWebSearch, cost, tt.expected)
			}
		})
	}
}

func TestEffectiveCost_WebSearchNeverCheaper(t *testing.T) {
	engine := NewCostEngine(testCostCatalog())

	for _, model := range []string{"openrouter/base", "openrouter/premium", "kluster/cheap"} {
		for _, raw := range []int{1, 100, 4096, 99999} {
			plain := engine.EffectiveCost(model, raw, false)
			searched := engine.EffectiveCost(model, raw, true)
			if searched < plain {
				t.Errorf("Web search cost %d below plain cost %d for %s/%d tokens", searched, plain, model, raw)
			}
		}
	}
}

func TestEffectiveCost_NilCatalog(t *testing.T) {
	engine := NewCostEngine(nil)

	if cost := engine.EffectiveCost("any/model", 500, true); cost != 500 {
		t.Errorf("Expected unscaled cost 500 with nil catalog, got %d", cost)
	}
}

func TestEstimateText(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}

	for _, tt := range tests {
		if got := EstimateText(tt.input); got != tt.expected {
			t.Errorf("EstimateText(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestEstimateText_Deterministic(t *testing.T) {
	text := "the same input must always yield the same estimate"
	first := EstimateText(text)
	for i := 0; i < 10; i++ {
		if EstimateText(text) != first {
			t.Fatal("EstimateText is not deterministic")
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	messages := []llm.Message{
		{Role: "system", Content: "abcd"},     // 1
		{Role: "user", Content: "abcdefgh"},   // 2
		{Role: "assistant", Content: "abcde"}, // 2
	}

	if got := EstimateMessages(messages); got != 5 {
		t.Errorf("EstimateMessages = %d, expected 5", got)
	}

	if got := EstimateMessages(nil); got != 0 {
		t.Errorf("EstimateMessages(nil) = %d, expected 0", got)
	}
}
