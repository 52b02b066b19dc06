// Package interview supplies pluggable human input for the Wait-Human
// node handler: a single synchronous ask over a closed AnswerKind
// alphabet, with queue, callback, auto-approve, console, and recording
// implementations.
package interview

import (
	"context"
	"sync"
)

// AnswerKind discriminates a HumanAnswer's variant.
type AnswerKind string

const (
	AnswerSelected AnswerKind = "selected"
	AnswerYes      AnswerKind = "yes"
	AnswerNo       AnswerKind = "no"
	AnswerFreeText AnswerKind = "free_text"
	AnswerTimeout  AnswerKind = "timeout"
	AnswerSkipped  AnswerKind = "skipped"
)

// HumanChoice is one option a Wait-Human node offers.
type HumanChoice struct {
	Key    string
	Label  string
	ToNode string
}

// HumanQuestion is what the Pipeline Runner asks an Interviewer.
type HumanQuestion struct {
	Kind    string // "" for a graph Wait-Human gate; "ToolApproval" for the dispatch-level gate
	Prompt  string
	Choices []HumanChoice
}

// HumanAnswer is what an Interviewer returns.
type HumanAnswer struct {
	Kind     AnswerKind
	Selected string // populated when Kind == AnswerSelected
	Text     string // populated when Kind == AnswerFreeText
}

// Interviewer is the pluggable human-input capability.
type Interviewer interface {
	Ask(ctx context.Context, q HumanQuestion) (HumanAnswer, error)
}

// AutoApproveInterviewer always answers with the first choice, or Yes
// if there are no choices.
type AutoApproveInterviewer struct{}

func (AutoApproveInterviewer) Ask(_ context.Context, q HumanQuestion) (HumanAnswer, error) {
	if len(q.Choices) > 0 {
		return HumanAnswer{Kind: AnswerSelected, Selected: q.Choices[0].Key}, nil
	}
	return HumanAnswer{Kind: AnswerYes}, nil
}

// QueueInterviewer answers from a FIFO of preset answers, defaulting to
// Skipped once the queue is drained.
type QueueInterviewer struct {
	mu      sync.Mutex
	answers []HumanAnswer
}

// NewQueueInterviewer builds a QueueInterviewer preloaded with answers.
func NewQueueInterviewer(answers...HumanAnswer) *QueueInterviewer {
	return &QueueInterviewer{answers: append([]HumanAnswer(nil), answers...)}
}

// Push appends another preset answer to the queue.
func (q *QueueInterviewer) Push(a HumanAnswer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.answers = append(q.answers, a)
}

func (q *QueueInterviewer) Ask(_ context.Context, _ HumanQuestion) (HumanAnswer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.answers) == 0 {
		return HumanAnswer{Kind: AnswerSkipped}, nil
	}
	a := q.answers[0]
	q.answers = q.answers[1:]
	return a, nil
}

// CallbackInterviewer delegates to an injected function, the way a CLI
// or TUI front-end (out of scope) would wire a live human prompt.
type CallbackInterviewer struct {
	Fn func(ctx context.Context, q HumanQuestion) (HumanAnswer, error)
}

func (c CallbackInterviewer) Ask(ctx context.Context, q HumanQuestion) (HumanAnswer, error) {
	return c.Fn(ctx, q)
}

// ConsolePrompter is the minimal I/O surface ConsoleInterviewer needs,
// so tests can substitute an in-memory reader/writer instead of stdio.
type ConsolePrompter interface {
	Prompt(q HumanQuestion) (string, error)
}

// ConsoleInterviewer renders HumanQuestion to a ConsolePrompter and
// maps the free-text reply onto the closed answer alphabet: a reply
// matching a choice key (case-insensitively) or its label resolves to
// AnswerSelected; "y"/"yes" and "n"/"no" map to AnswerYes/AnswerNo when
// there are no choices; anything else is AnswerFreeText.
type ConsoleInterviewer struct {
	Prompter ConsolePrompter
}

func (c ConsoleInterviewer) Ask(_ context.Context, q HumanQuestion) (HumanAnswer, error) {
	reply, err := c.Prompter.Prompt(q)
	if err != nil {
		return HumanAnswer{}, err
	}
	return classifyReply(reply, q.Choices), nil
}

func classifyReply(reply string, choices []HumanChoice) HumanAnswer {
	norm := normalize(reply)
	for _, c := range choices {
		if normalize(c.Key) == norm || normalize(c.Label) == norm {
			return HumanAnswer{Kind: AnswerSelected, Selected: c.Key}
		}
	}
	if len(choices) == 0 {
		switch norm {
		case "y", "yes":
			return HumanAnswer{Kind: AnswerYes}
		case "n", "no":
			return HumanAnswer{Kind: AnswerNo}
		}
	}
	if norm == "" {
		return HumanAnswer{Kind: AnswerSkipped}
	}
	return HumanAnswer{Kind: AnswerFreeText, Text: reply}
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// Recording is one (question, answer) pair captured by a
// RecordingInterviewer.
type Recording struct {
	Question HumanQuestion
	Answer   HumanAnswer
}

// RecordingInterviewer wraps another Interviewer and appends every
// (question, answer) exchange to a recording, for replay/audit.
type RecordingInterviewer struct {
	inner Interviewer
	mu    sync.Mutex
	log   []Recording
}

// NewRecordingInterviewer wraps inner.
func NewRecordingInterviewer(inner Interviewer) *RecordingInterviewer {
	return &RecordingInterviewer{inner: inner}
}

func (r *RecordingInterviewer) Ask(ctx context.Context, q HumanQuestion) (HumanAnswer, error) {
	a, err := r.inner.Ask(ctx, q)
	if err != nil {
		return a, err
	}
	r.mu.Lock()
	r.log = append(r.log, Recording{Question: q, Answer: a})
	r.mu.Unlock()
	return a, nil
}

// Recordings returns a copy of every exchange captured so far.
func (r *RecordingInterviewer) Recordings() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recording(nil), r.log...)
}
