package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/forgehq/forge/internal/models"
)

func userTurn(text string) *models.Turn {
	t := models.NewUserTurn(text)
	return &t
}

func assistantTurn(text string, calls ...models.ToolCall) *models.Turn {
	t := models.NewAssistantTurn(text, "", calls, models.Usage{}, "")
	return &t
}

// mockSummarizer labels each call so tests can see chunking and merge
// structure in the output.
type mockSummarizer struct {
	calls int
	err   error
}

func (m *mockSummarizer) GenerateSummary(_ context.Context, turns []*models.Turn, _ *SummarizationConfig) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("summary#%d(%d turns)", m.calls, len(turns)), nil
}

func TestEstimateTurnTokens(t *testing.T) {
	if got := EstimateTurnTokens(nil); got != 0 {
		t.Fatalf("nil turn = %d tokens", got)
	}
	// 8 chars ceil-divided by 4.
	if got := EstimateTurnTokens(userTurn("12345678")); got != 2 {
		t.Fatalf("8-char turn = %d tokens, want 2", got)
	}
	// Ceiling, not floor.
	if got := EstimateTurnTokens(userTurn("123456789")); got != 3 {
		t.Fatalf("9-char turn = %d tokens, want 3", got)
	}
}

func TestEstimateTurnTokensCountsToolPayloads(t *testing.T) {
	bare := assistantTurn("x")
	withCall := assistantTurn("x", models.ToolCall{Name: "grep", Arguments: []byte(`{"pattern":"needle"}`)})
	if EstimateTurnTokens(withCall) <= EstimateTurnTokens(bare) {
		t.Fatal("tool call payload not counted")
	}
}

func TestSplitByTokenShare(t *testing.T) {
	turns := []*models.Turn{
		userTurn(strings.Repeat("a", 40)),
		userTurn(strings.Repeat("b", 40)),
		userTurn(strings.Repeat("c", 40)),
		userTurn(strings.Repeat("d", 40)),
	}

	parts := SplitByTokenShare(turns, 2)
	if len(parts) != 2 {
		t.Fatalf("split into %d parts, want 2", len(parts))
	}
	var total int
	for _, p := range parts {
		total += len(p)
	}
	if total != len(turns) {
		t.Fatalf("split dropped turns: %d != %d", total, len(turns))
	}

	if got := SplitByTokenShare(turns, 1); len(got) != 1 {
		t.Fatalf("parts=1 split into %d", len(got))
	}
	if got := SplitByTokenShare(turns[:1], 3); len(got) != 1 {
		t.Fatalf("fewer turns than parts split into %d", len(got))
	}
	if SplitByTokenShare(nil, 2) != nil {
		t.Fatal("nil turns should split to nil")
	}
}

func TestChunkByMaxTokens(t *testing.T) {
	turns := []*models.Turn{
		userTurn(strings.Repeat("a", 40)), // 10 tokens
		userTurn(strings.Repeat("b", 40)),
		userTurn(strings.Repeat("c", 40)),
	}

	chunks := ChunkByMaxTokens(turns, 20)
	if len(chunks) != 2 {
		t.Fatalf("chunked into %d, want 2", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk) != 1 && EstimateTokens(chunk) > 20 {
			t.Fatalf("chunk exceeds budget: %d tokens", EstimateTokens(chunk))
		}
	}
}

func TestChunkByMaxTokensIsolatesOversizedTurn(t *testing.T) {
	turns := []*models.Turn{
		userTurn("small"),
		userTurn(strings.Repeat("x", 400)), // 100 tokens, over budget
		userTurn("small"),
	}
	chunks := ChunkByMaxTokens(turns, 10)
	if len(chunks) != 3 {
		t.Fatalf("chunked into %d, want 3", len(chunks))
	}
	if len(chunks[1]) != 1 {
		t.Fatalf("oversized turn not isolated: chunk has %d turns", len(chunks[1]))
	}
}

func TestSummarizeInStagesEmptyAndNil(t *testing.T) {
	got, err := SummarizeInStages(context.Background(), nil, &mockSummarizer{}, nil)
	if err != nil || got != DefaultSummaryFallback {
		t.Fatalf("empty history = %q, %v", got, err)
	}

	if _, err := SummarizeInStages(context.Background(), []*models.Turn{userTurn("x")}, nil, nil); err == nil {
		t.Fatal("nil summarizer must error")
	}
}

func TestSummarizeInStagesShortHistorySinglePass(t *testing.T) {
	summarizer := &mockSummarizer{}
	turns := []*models.Turn{userTurn("one"), assistantTurn("two")}

	got, err := SummarizeInStages(context.Background(), turns, summarizer, nil)
	if err != nil {
		t.Fatalf("SummarizeInStages() error: %v", err)
	}
	if summarizer.calls != 1 {
		t.Fatalf("short history made %d summarizer calls, want 1", summarizer.calls)
	}
	if !strings.Contains(got, "2 turns") {
		t.Fatalf("summary = %q", got)
	}
}

func TestSummarizeInStagesSplitsAndMerges(t *testing.T) {
	summarizer := &mockSummarizer{}
	var turns []*models.Turn
	for i := 0; i < 8; i++ {
		turns = append(turns, userTurn(strings.Repeat("x", 200)))
	}

	_, err := SummarizeInStages(context.Background(), turns, summarizer, &SummarizationConfig{
		ContextWindow:  1000,
		MaxChunkTokens: 200,
	})
	if err != nil {
		t.Fatalf("SummarizeInStages() error: %v", err)
	}
	// Two partitions plus a merge pass at minimum.
	if summarizer.calls < 3 {
		t.Fatalf("summarizer called %d times, want >= 3", summarizer.calls)
	}
}

func TestSummarizeInStagesNotesOversizedTurn(t *testing.T) {
	summarizer := &mockSummarizer{}
	turns := []*models.Turn{
		userTurn("small"),
		userTurn(strings.Repeat("x", 4000)), // 1000 tokens > 50% of 1000-window
	}

	got, err := SummarizeInStages(context.Background(), turns, summarizer, &SummarizationConfig{ContextWindow: 1000})
	if err != nil {
		t.Fatalf("SummarizeInStages() error: %v", err)
	}
	if !strings.Contains(got, "content omitted") {
		t.Fatalf("oversized note missing from %q", got)
	}
}

func TestSummarizeInStagesFoldsInPreviousSummary(t *testing.T) {
	summarizer := &mockSummarizer{}
	var turns []*models.Turn
	for i := 0; i < 8; i++ {
		turns = append(turns, userTurn(strings.Repeat("y", 200)))
	}

	_, err := SummarizeInStages(context.Background(), turns, summarizer, &SummarizationConfig{
		ContextWindow:   1000,
		MaxChunkTokens:  200,
		PreviousSummary: "prior state",
	})
	if err != nil {
		t.Fatalf("SummarizeInStages() error: %v", err)
	}
	if summarizer.calls < 3 {
		t.Fatalf("summarizer called %d times", summarizer.calls)
	}
}

func TestSummarizeInStagesPropagatesErrors(t *testing.T) {
	summarizer := &mockSummarizer{err: errors.New("backend down")}
	turns := []*models.Turn{userTurn("a"), userTurn("b")}

	if _, err := SummarizeInStages(context.Background(), turns, summarizer, nil); err == nil {
		t.Fatal("summarizer error not propagated")
	}
}

func TestFormatTurnsForSummary(t *testing.T) {
	call := models.ToolCall{Name: "read_file", Arguments: []byte(`{"path":"main.go"}`)}
	turns := []*models.Turn{
		userTurn("please read main.go"),
		assistantTurn("reading", call),
		nil,
	}

	got := FormatTurnsForSummary(turns)
	if !strings.Contains(got, "[user]: please read main.go") {
		t.Fatalf("user line missing: %q", got)
	}
	if !strings.Contains(got, "read_file") {
		t.Fatalf("tool call missing: %q", got)
	}
}

func TestFormatTurnsForSummaryTruncatesToolPayloads(t *testing.T) {
	call := models.ToolCall{Name: "exec", Arguments: []byte(`{"cmd":"` + strings.Repeat("z", 500) + `"}`)}
	got := FormatTurnsForSummary([]*models.Turn{assistantTurn("run", call)})
	if !strings.Contains(got, "...") {
		t.Fatalf("long payload not truncated: %q", got)
	}
}

func TestSteeringTurnsLabelledAsUser(t *testing.T) {
	st := models.NewSteeringTurn("stop and reconsider")
	got := FormatTurnsForSummary([]*models.Turn{&st})
	if !strings.Contains(got, "[user]: [steering] stop and reconsider") {
		t.Fatalf("steering rendering = %q", got)
	}
}
