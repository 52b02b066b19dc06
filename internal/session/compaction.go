package session

import (
	"context"
	"strings"

	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/compaction"
	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/models"
)

// compactionTrigger is the fraction of the context window at which
// history is actually compacted, set above contextUsageThreshold
// (contextusage.go) so the WARNING event fires first and compaction
// only engages if the conversation keeps growing past it.
const compactionTrigger = 0.92

// compactionShare is the fraction of the context window compaction
// leaves as its post-compaction chunk budget, giving the summarizer
// headroom to process a large backlog in more than one pass.
const compactionShare = 0.4

// compactionKeepRecent is the number of most-recent turns compaction
// never summarizes away, keeping the immediate exchange intact.
const compactionKeepRecent = 6

// llmSummarizer adapts a Session's own LLM Client into a
// compaction.Summarizer: compacting history costs one extra Complete
// call against the same provider/model already in use, rather than a
// dedicated summarization backend.
type llmSummarizer struct {
	client   llm.Client
	provider string
	model    string
}

func (s *llmSummarizer) GenerateSummary(ctx context.Context, turns []*models.Turn, cfg *compaction.SummarizationConfig) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize the following agent conversation history. Preserve decisions, open questions, file paths, and facts a continuation would need. Be terse.\n\n")
	if cfg != nil && cfg.CustomInstructions != "" {
		sb.WriteString(cfg.CustomInstructions)
		sb.WriteString("\n\n")
	}
	if cfg != nil && cfg.PreviousSummary != "" && cfg.PreviousSummary != compaction.DefaultSummaryFallback {
		sb.WriteString("Prior summary:\n")
		sb.WriteString(cfg.PreviousSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString(compaction.FormatTurnsForSummary(turns))

	req := llm.Request{
		Model: s.model,
		Messages: []llm.WireMessage{
			{Role: "system", Text: "You produce terse, factual summaries of agent conversation history for context compaction."},
			{Role: "user", Text: sb.String()},
		},
	}
	resp, err := s.client.Complete(ctx, s.provider, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// turnPointers takes the addresses of a turn slice's elements so the
// compaction package can operate on []*models.Turn directly, the way it
// operates on any transcript without a conversion step.
func turnPointers(history []models.Turn) []*models.Turn {
	out := make([]*models.Turn, len(history))
	for i := range history {
		out[i] = &history[i]
	}
	return out
}

// maybeCompact summarizes the oldest turns into a single system turn
// once history grows past compactionTrigger's share of the context
// window.
// A failure (e.g. the summarization Complete call erroring) leaves
// history untouched and is logged, never surfaced to the caller: a
// failed compaction degrades to "no compaction this round", not a
// submit error.
func (s *Session) maybeCompact(ctx context.Context, windowSize int) {
	if windowSize <= 0 {
		return
	}
	history := s.snapshotHistory()
	if len(history) <= compactionKeepRecent {
		return
	}
	if float64(approxTokens(history))/float64(windowSize) < compactionTrigger {
		return
	}

	older := history[:len(history)-compactionKeepRecent]
	recent := history[len(history)-compactionKeepRecent:]

	budget := int(float64(windowSize) * compactionShare)
	cfg := &compaction.SummarizationConfig{ContextWindow: windowSize, MaxChunkTokens: budget}
	summarizer := &llmSummarizer{client: s.deps.LLMClient, provider: s.deps.Provider, model: s.deps.Model}

	summary, err := compaction.SummarizeInStages(ctx, turnPointers(older), summarizer, cfg)
	if err != nil {
		if s.deps.Logger != nil {
			s.deps.Logger.Warn("compaction failed, continuing uncompacted", "error", err)
		}
		if s.deps.AuditLogger != nil {
			s.deps.AuditLogger.LogError(ctx, audit.EventSessionCompact, "compaction_failed", err.Error(), nil)
		}
		return
	}

	summaryTurn := models.NewSystemTurn("Summary of earlier conversation:\n" + summary)
	compacted := append([]models.Turn{summaryTurn}, recent...)

	s.mu.Lock()
	s.history = compacted
	s.mu.Unlock()

	if err := s.persistTurnRecord(ctx, lineage.TypeSystemTurn, lineage.VersionTurn, "system_turn", summaryTurn); err != nil && s.deps.Logger != nil {
		s.deps.Logger.Warn("failed to persist compaction summary turn", "error", err)
	}

	s.emitter.Warning("info", "compaction", map[string]any{
		"dropped_turns": len(older),
		"kept_turns":    len(recent),
	})

	if s.deps.AuditLogger != nil {
		s.deps.AuditLogger.LogSessionCompact(ctx, s.id, len(history), len(compacted), 0, "summarize_in_stages")
	}
}
