package context

import "testing"

func TestGetModelContextWindow(t *testing.T) {
	tokens, ok := GetModelContextWindow("claude-3-opus")
	if !ok {
		t.Fatal("expected claude-3-opus to resolve")
	}
	if tokens != 200000 {
		t.Errorf("claude-3-opus = %d, want 200000", tokens)
	}

	_, ok = GetModelContextWindow("unknown-model")
	if ok {
		t.Error("unknown model should not resolve")
	}
}

func TestGetModelContextWindow_PrefixMatch(t *testing.T) {
	tokens, ok := GetModelContextWindow("gpt-4-turbo-preview")
	if !ok {
		t.Fatal("expected prefix match for gpt-4-turbo-preview")
	}
	if tokens != 128000 {
		t.Errorf("gpt-4-turbo-preview = %d, want 128000 (gpt-4-turbo match)", tokens)
	}
}

func TestGetModelContextWindow_LongestPrefixWins(t *testing.T) {
	// "gpt-4-turbo" and "gpt-4" both prefix-match "gpt-4-turbo-2024-04-09";
	// the longer, more specific prefix must win.
	tokens, ok := GetModelContextWindow("gpt-4-turbo-2024-04-09")
	if !ok {
		t.Fatal("expected a prefix match")
	}
	if tokens != 128000 {
		t.Errorf("got %d, want 128000 from the gpt-4-turbo prefix, not gpt-4's 8192", tokens)
	}
}

func TestRegisterModelContextWindow(t *testing.T) {
	RegisterModelContextWindow("test-model-xyz", 42000)
	tokens, ok := GetModelContextWindow("test-model-xyz")
	if !ok || tokens != 42000 {
		t.Errorf("RegisterModelContextWindow did not take effect: tokens=%d ok=%v", tokens, ok)
	}
}
