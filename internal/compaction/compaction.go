// Package compaction condenses transcript history into summaries so a
// long-running session keeps fitting its provider's context window.
// It estimates token counts heuristically, chunks turns under a
// budget, and drives a caller-supplied Summarizer over the chunks,
// merging the partial summaries into one. The Session Engine applies
// the result by replacing its oldest turns with a single system turn;
// lineage history is never rewritten.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/models"
)

const (
	// charsPerToken is the estimation heuristic shared with the
	// context-usage warning: ~4 characters per token.
	charsPerToken = 4

	// defaultChunkShare sizes chunks when the config gives no explicit
	// MaxChunkTokens: 40% of the context window.
	defaultChunkShare = 0.4

	// oversizedShare is the fraction of the context window above which
	// one turn is noted instead of summarized.
	oversizedShare = 0.5

	defaultContextWindow = 100000
	defaultParts         = 2
	defaultMinTurnsSplit = 4
)

// DefaultSummaryFallback stands in for a summary when there is nothing
// to summarize.
const DefaultSummaryFallback = "No prior history."

// Summarizer produces a summary of a run of transcript turns. The
// Session Engine backs this with its own LLM client.
type Summarizer interface {
	GenerateSummary(ctx context.Context, turns []*models.Turn, cfg *SummarizationConfig) (string, error)
}

// SummarizationConfig tunes a summarization pass.
type SummarizationConfig struct {
	// ContextWindow is the model's window in tokens; zero takes a
	// conservative default.
	ContextWindow int

	// MaxChunkTokens caps each chunk handed to the Summarizer; zero
	// derives it from ContextWindow.
	MaxChunkTokens int

	// CustomInstructions is prepended to the summarization prompt.
	CustomInstructions string

	// PreviousSummary is folded in ahead of the new partial summaries.
	PreviousSummary string

	// Parts is how many partitions SummarizeInStages splits into.
	Parts int

	// MinTurnsForSplit is the history length below which no splitting
	// happens.
	MinTurnsForSplit int
}

func (c *SummarizationConfig) withDefaults() *SummarizationConfig {
	out := SummarizationConfig{}
	if c != nil {
		out = *c
	}
	if out.ContextWindow <= 0 {
		out.ContextWindow = defaultContextWindow
	}
	if out.MaxChunkTokens <= 0 {
		out.MaxChunkTokens = int(float64(out.ContextWindow) * defaultChunkShare)
	}
	if out.Parts <= 0 {
		out.Parts = defaultParts
	}
	if out.MinTurnsForSplit <= 0 {
		out.MinTurnsForSplit = defaultMinTurnsSplit
	}
	return &out
}

// EstimateTurnTokens estimates one turn's token cost across its text,
// tool calls, and tool results.
func EstimateTurnTokens(t *models.Turn) int {
	if t == nil {
		return 0
	}
	chars := len(turnText(t)) + len(toolCallsText(t)) + len(toolResultsText(t))
	return (chars + charsPerToken - 1) / charsPerToken
}

// EstimateTokens sums EstimateTurnTokens over turns.
func EstimateTokens(turns []*models.Turn) int {
	total := 0
	for _, t := range turns {
		total += EstimateTurnTokens(t)
	}
	return total
}

func turnText(t *models.Turn) string {
	if t.Kind == models.TurnSteering {
		return "[steering] " + t.Text
	}
	return t.Text
}

func toolCallsText(t *models.Turn) string {
	if t.Kind != models.TurnAssistant || len(t.ToolCalls) == 0 {
		return ""
	}
	parts := make([]string, len(t.ToolCalls))
	for i, c := range t.ToolCalls {
		parts[i] = fmt.Sprintf("%s(%s)", c.Name, string(c.EffectiveArguments()))
	}
	return strings.Join(parts, "; ")
}

func toolResultsText(t *models.Turn) string {
	if t.Kind != models.TurnToolResults || len(t.Results) == 0 {
		return ""
	}
	parts := make([]string, len(t.Results))
	for i, r := range t.Results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n")
}

func roleLabel(t *models.Turn) string {
	switch t.Kind {
	case models.TurnUser, models.TurnSteering:
		return "user"
	case models.TurnAssistant:
		return "assistant"
	case models.TurnToolResults:
		return "tool_result"
	case models.TurnSystem:
		return "system"
	}
	return "unknown"
}

// SplitByTokenShare partitions turns into up to parts runs of roughly
// equal token weight, preserving order.
func SplitByTokenShare(turns []*models.Turn, parts int) [][]*models.Turn {
	if len(turns) == 0 {
		return nil
	}
	if parts <= 1 || len(turns) < parts {
		return [][]*models.Turn{turns}
	}

	target := EstimateTokens(turns) / parts
	var (
		out     [][]*models.Turn
		current []*models.Turn
		weight  int
	)
	for i, t := range turns {
		current = append(current, t)
		weight += EstimateTurnTokens(t)
		last := i == len(turns)-1
		if !last && len(out) < parts-1 && weight >= target {
			out = append(out, current)
			current, weight = nil, 0
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

// ChunkByMaxTokens groups turns into consecutive chunks of at most
// maxTokens each. A single turn over the budget becomes its own chunk.
func ChunkByMaxTokens(turns []*models.Turn, maxTokens int) [][]*models.Turn {
	if len(turns) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]*models.Turn{turns}
	}

	var (
		out     [][]*models.Turn
		current []*models.Turn
		weight  int
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, current)
			current, weight = nil, 0
		}
	}
	for _, t := range turns {
		tokens := EstimateTurnTokens(t)
		if tokens > maxTokens {
			flush()
			out = append(out, []*models.Turn{t})
			continue
		}
		if weight+tokens > maxTokens {
			flush()
		}
		current = append(current, t)
		weight += tokens
	}
	flush()
	return out
}

// isOversized reports whether one turn is too large to feed a
// summarization call at all.
func isOversized(t *models.Turn, contextWindow int) bool {
	return float64(EstimateTurnTokens(t)) > float64(contextWindow)*oversizedShare
}

// summarizeChunked summarizes turns chunk by chunk, then merges.
func summarizeChunked(ctx context.Context, turns []*models.Turn, summarizer Summarizer, cfg *SummarizationConfig) (string, error) {
	chunks := ChunkByMaxTokens(turns, cfg.MaxChunkTokens)
	if len(chunks) == 0 {
		return DefaultSummaryFallback, nil
	}
	if len(chunks) == 1 {
		return summarizer.GenerateSummary(ctx, chunks[0], cfg)
	}

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		s, err := summarizer.GenerateSummary(ctx, chunk, cfg)
		if err != nil {
			return "", fmt.Errorf("summarize chunk %d: %w", i, err)
		}
		summaries = append(summaries, s)
	}
	return mergeSummaries(ctx, summaries, summarizer, cfg)
}

func mergeSummaries(ctx context.Context, summaries []string, summarizer Summarizer, cfg *SummarizationConfig) (string, error) {
	switch len(summaries) {
	case 0:
		return DefaultSummaryFallback, nil
	case 1:
		return summaries[0], nil
	}

	turns := make([]*models.Turn, len(summaries))
	for i, s := range summaries {
		turn := models.NewSystemTurn(fmt.Sprintf("Chunk %d summary:\n%s", i+1, s))
		turns[i] = &turn
	}

	mergeCfg := *cfg
	mergeCfg.CustomInstructions = strings.TrimSpace(cfg.CustomInstructions +
		"\n\nMerge these chunk summaries into a single coherent summary. Preserve key details and chronological flow.")
	return summarizer.GenerateSummary(ctx, turns, &mergeCfg)
}

// summarizeWithFallback summarizes turns, replacing any turn too large
// to summarize with a placeholder note instead of failing.
func summarizeWithFallback(ctx context.Context, turns []*models.Turn, summarizer Summarizer, cfg *SummarizationConfig) (string, error) {
	var (
		normal []*models.Turn
		notes  []string
	)
	for _, t := range turns {
		if isOversized(t, cfg.ContextWindow) {
			notes = append(notes, fmt.Sprintf("[Oversized %s turn with %d tokens - content omitted]",
				roleLabel(t), EstimateTurnTokens(t)))
			continue
		}
		normal = append(normal, t)
	}

	summary := DefaultSummaryFallback
	if len(normal) > 0 {
		var err error
		summary, err = summarizeChunked(ctx, normal, summarizer, cfg)
		if err != nil {
			return "", err
		}
	}
	if len(notes) > 0 {
		summary += "\n\n" + strings.Join(notes, "\n")
	}
	return summary, nil
}

// SummarizeInStages is the compaction entry point: split the history
// into token-balanced parts, summarize each (noting oversized turns),
// fold in cfg.PreviousSummary, and merge the partial summaries.
func SummarizeInStages(ctx context.Context, turns []*models.Turn, summarizer Summarizer, cfg *SummarizationConfig) (string, error) {
	if len(turns) == 0 {
		return DefaultSummaryFallback, nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("summarizer is nil")
	}
	cfg = cfg.withDefaults()

	if len(turns) < cfg.MinTurnsForSplit {
		return summarizeWithFallback(ctx, turns, summarizer, cfg)
	}
	partitions := SplitByTokenShare(turns, cfg.Parts)
	if len(partitions) <= 1 {
		return summarizeWithFallback(ctx, turns, summarizer, cfg)
	}

	summaries := make([]string, 0, len(partitions)+1)
	if cfg.PreviousSummary != "" && cfg.PreviousSummary != DefaultSummaryFallback {
		summaries = append(summaries, cfg.PreviousSummary)
	}
	for i, partition := range partitions {
		s, err := summarizeWithFallback(ctx, partition, summarizer, cfg)
		if err != nil {
			return "", fmt.Errorf("summarize part %d: %w", i, err)
		}
		summaries = append(summaries, s)
	}
	return mergeSummaries(ctx, summaries, summarizer, cfg)
}

// FormatTurnsForSummary renders turns as role-labelled text for a
// summarization prompt, truncating tool payloads.
func FormatTurnsForSummary(turns []*models.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		if t == nil {
			continue
		}
		fmt.Fprintf(&sb, "[%s]: %s", roleLabel(t), turnText(t))
		if calls := toolCallsText(t); calls != "" {
			fmt.Fprintf(&sb, "\n  [Tool calls: %s]", truncate(calls, 200))
		}
		if results := toolResultsText(t); results != "" {
			fmt.Fprintf(&sb, "\n  [Tool results: %s]", truncate(results, 200))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
