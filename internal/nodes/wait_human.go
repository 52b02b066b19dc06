package nodes

import (
	"context"
	"strings"
	"time"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/interview"
	"github.com/forgehq/forge/internal/models"
)

// WaitHumanHandler implements the Wait-Human node.
type WaitHumanHandler struct {
	Interviewer interview.Interviewer
}

func (h WaitHumanHandler) Execute(ctx context.Context, node graph.Node, _ *models.RuntimeContext, g *graph.Graph) (models.NodeOutcome, error) {
	edges := g.OutgoingEdges(node.ID)
	choices := buildChoices(edges)

	prompt := node.Attrs.Str("prompt")
	if prompt == "" {
		prompt = node.Attrs.Str("label")
	}
	q := interview.HumanQuestion{Prompt: prompt, Choices: choices}

	timeoutSec, hasTimeout := node.Attrs.GetInteger("human.timeout_seconds")
	defaultChoice := node.Attrs.Str("human.default_choice")

	ans, err := h.ask(ctx, q, hasTimeout, timeoutSec)
	if err != nil {
		return models.NodeOutcome{}, err
	}

	switch ans.Kind {
	case interview.AnswerSelected:
		toNode := toNodeForKey(choices, ans.Selected)
		if toNode == "" {
			return models.NodeOutcome{Status: models.NodeFail, Notes: "selected key matches no choice: " + ans.Selected}, nil
		}
		return models.NodeOutcome{
			Status:           models.NodeSuccess,
			SuggestedNextIDs: []string{toNode},
			PreferredLabel:   labelForKey(choices, ans.Selected),
		}, nil
	case interview.AnswerYes:
		if len(choices) > 0 {
			return models.NodeOutcome{Status: models.NodeSuccess, SuggestedNextIDs: []string{choices[0].ToNode}}, nil
		}
		return models.NodeOutcome{Status: models.NodeSuccess}, nil
	case interview.AnswerNo, interview.AnswerSkipped:
		return models.NodeOutcome{Status: models.NodeFail, Notes: "human answered no/skipped"}, nil
	case interview.AnswerTimeout:
		if defaultChoice != "" {
			if toNode := toNodeForKey(choices, defaultChoice); toNode != "" {
				return models.NodeOutcome{Status: models.NodeSuccess, SuggestedNextIDs: []string{toNode}}, nil
			}
		}
		return models.NodeOutcome{Status: models.NodeRetry, Notes: "human gate timed out"}, nil
	case interview.AnswerFreeText:
		return models.NodeOutcome{Status: models.NodeFail, Notes: "free text matched no choice: " + ans.Text}, nil
	default:
		return models.NodeOutcome{Status: models.NodeFail}, nil
	}
}

func (h WaitHumanHandler) ask(ctx context.Context, q interview.HumanQuestion, hasTimeout bool, timeoutSec int64) (interview.HumanAnswer, error) {
	if !hasTimeout || timeoutSec <= 0 {
		return h.Interviewer.Ask(ctx, q)
	}

	type outcome struct {
		ans interview.HumanAnswer
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		a, e := h.Interviewer.Ask(ctx, q)
		ch <- outcome{a, e}
	}()
	select {
	case o := <-ch:
		return o.ans, o.err
	case <-time.After(time.Duration(timeoutSec) * time.Second):
		return interview.HumanAnswer{Kind: interview.AnswerTimeout}, nil
	}
}

// buildChoices derives HumanChoices from outgoing edges.
func buildChoices(edges []graph.Edge) []interview.HumanChoice {
	choices := make([]interview.HumanChoice, 0, len(edges))
	for _, e := range edges {
		label := e.Attrs.Str("label")
		key, display := parseAccelerator(label)
		choices = append(choices, interview.HumanChoice{Key: key, Label: display, ToNode: e.To})
	}
	return choices
}

// parseAccelerator extracts a leading "[X] " accelerator from label, or
// falls back to label's first letter uppercased.
func parseAccelerator(label string) (key, display string) {
	trimmed := strings.TrimSpace(label)
	if strings.HasPrefix(trimmed, "[") {
		if end := strings.Index(trimmed, "]"); end > 0 {
			return strings.ToUpper(trimmed[1:end]), strings.TrimSpace(trimmed[end+1:])
		}
	}
	if trimmed == "" {
		return "", ""
	}
	return strings.ToUpper(trimmed[:1]), trimmed
}

func toNodeForKey(choices []interview.HumanChoice, key string) string {
	for _, c := range choices {
		if strings.EqualFold(c.Key, key) {
			return c.ToNode
		}
	}
	return ""
}

func labelForKey(choices []interview.HumanChoice, key string) string {
	for _, c := range choices {
		if strings.EqualFold(c.Key, key) {
			return c.Label
		}
	}
	return ""
}
