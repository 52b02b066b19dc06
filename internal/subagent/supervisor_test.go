package subagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/internal/models"
)

type fakeRunner struct {
	lastText     string
	hadToolCalls bool
	turnsUsed    int
	aborted      bool
	submitDelay  time.Duration
	submitErr    error
}

func (f *fakeRunner) Submit(ctx context.Context, input string, opts models.SubmitOptions) (models.SubmitResult, error) {
	if f.submitDelay > 0 {
		time.Sleep(f.submitDelay)
	}
	if f.submitErr != nil {
		return models.SubmitResult{}, f.submitErr
	}
	return models.SubmitResult{AssistantText: f.lastText}, nil
}

func (f *fakeRunner) LastAssistantText() (string, bool) { return f.lastText, f.hadToolCalls }
func (f *fakeRunner) TurnsUsed() int                    { return f.turnsUsed }
func (f *fakeRunner) RequestAbort()                     { f.aborted = true }

func (f *fakeRunner) PersistenceSnapshot() models.PersistenceSnapshot {
	return models.PersistenceSnapshot{SessionID: "fake-child"}
}

type fakeFactory struct {
	runner *fakeRunner
	err    error
}

func (f *fakeFactory) NewChild(ctx context.Context, spec SpawnSpec) (Runner, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.runner, nil
}

func TestSpawnAgentRejectsAtMaxDepth(t *testing.T) {
	s := NewSupervisor(&fakeFactory{runner: &fakeRunner{}}, nil, 3, 3)
	_, err := s.SpawnAgent(context.Background(), SpawnSpec{Task: "do a thing"})
	require.Error(t, err)
	var forgeErr *models.Error
	require.ErrorAs(t, err, &forgeErr)
	assert.Equal(t, KindDepthExceeded, forgeErr.Kind)
}

func TestSpawnWaitReturnsSuccessWhenNoToolCalls(t *testing.T) {
	runner := &fakeRunner{lastText: "done", hadToolCalls: false, turnsUsed: 2}
	s := NewSupervisor(&fakeFactory{runner: runner}, nil, 0, 3)
	handle, err := s.SpawnAgent(context.Background(), SpawnSpec{Task: "go"})
	require.NoError(t, err)
	assert.Equal(t, models.SubAgentRunning, handle.Status)

	result, err := s.Wait(context.Background(), handle.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Output)
	assert.Equal(t, 2, result.TurnsUsed)

	updated, ok := s.Handle(handle.ID)
	require.True(t, ok)
	assert.Equal(t, models.SubAgentCompleted, updated.Status)
}

func TestSendInputRejectedWhileRunning(t *testing.T) {
	runner := &fakeRunner{submitDelay: 50 * time.Millisecond}
	s := NewSupervisor(&fakeFactory{runner: runner}, nil, 0, 3)
	handle, err := s.SpawnAgent(context.Background(), SpawnSpec{Task: "go"})
	require.NoError(t, err)

	err = s.SendInput(context.Background(), handle.ID, "more")
	require.Error(t, err)

	_, _ = s.Wait(context.Background(), handle.ID)
}

func TestCloseAgentAbortsAndMarksFailed(t *testing.T) {
	runner := &fakeRunner{submitDelay: 50 * time.Millisecond}
	s := NewSupervisor(&fakeFactory{runner: runner}, nil, 0, 3)
	handle, err := s.SpawnAgent(context.Background(), SpawnSpec{Task: "go"})
	require.NoError(t, err)

	require.NoError(t, s.CloseAgent(handle.ID))
	assert.True(t, runner.aborted)

	updated, ok := s.Handle(handle.ID)
	require.True(t, ok)
	assert.Equal(t, models.SubAgentFailed, updated.Status)
}

func TestWaitUnknownAgentErrors(t *testing.T) {
	s := NewSupervisor(&fakeFactory{runner: &fakeRunner{}}, nil, 0, 3)
	_, err := s.Wait(context.Background(), "nope")
	require.Error(t, err)
}
