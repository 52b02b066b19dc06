package interview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoApproveInterviewer(t *testing.T) {
	a := AutoApproveInterviewer{}
	ans, err := a.Ask(context.Background(), HumanQuestion{Choices: []HumanChoice{{Key: "Y"}, {Key: "N"}}})
	require.NoError(t, err)
	assert.Equal(t, AnswerSelected, ans.Kind)
	assert.Equal(t, "Y", ans.Selected)

	ans, err = a.Ask(context.Background(), HumanQuestion{})
	require.NoError(t, err)
	assert.Equal(t, AnswerYes, ans.Kind)
}

func TestQueueInterviewerDrainsThenSkips(t *testing.T) {
	q := NewQueueInterviewer(HumanAnswer{Kind: AnswerSelected, Selected: "N"})
	ans, err := q.Ask(context.Background(), HumanQuestion{})
	require.NoError(t, err)
	assert.Equal(t, "N", ans.Selected)

	ans, err = q.Ask(context.Background(), HumanQuestion{})
	require.NoError(t, err)
	assert.Equal(t, AnswerSkipped, ans.Kind)
}

type fixedPrompter struct{ reply string }

func (f fixedPrompter) Prompt(HumanQuestion) (string, error) { return f.reply, nil }

func TestConsoleInterviewerClassifiesChoice(t *testing.T) {
	c := ConsoleInterviewer{Prompter: fixedPrompter{reply: "n"}}
	ans, err := c.Ask(context.Background(), HumanQuestion{Choices: []HumanChoice{
		{Key: "Y", Label: "Yes"}, {Key: "N", Label: "No"},
	}})
	require.NoError(t, err)
	assert.Equal(t, AnswerSelected, ans.Kind)
	assert.Equal(t, "N", ans.Selected)
}

func TestConsoleInterviewerFreeText(t *testing.T) {
	c := ConsoleInterviewer{Prompter: fixedPrompter{reply: "do something else"}}
	ans, err := c.Ask(context.Background(), HumanQuestion{Choices: []HumanChoice{{Key: "Y"}}})
	require.NoError(t, err)
	assert.Equal(t, AnswerFreeText, ans.Kind)
	assert.Equal(t, "do something else", ans.Text)
}

func TestRecordingInterviewer(t *testing.T) {
	r := NewRecordingInterviewer(AutoApproveInterviewer{})
	q := HumanQuestion{Prompt: "proceed?"}
	_, err := r.Ask(context.Background(), q)
	require.NoError(t, err)
	recs := r.Recordings()
	require.Len(t, recs, 1)
	assert.Equal(t, "proceed?", recs[0].Question.Prompt)
}
