package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedEmitterReplaysPriorEventsThenLive(t *testing.T) {
	bus := NewBufferedEmitter(8)
	se := NewSessionEmitter("s1", bus)

	se.SessionStart()
	se.UserInput("hello")

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	first := <-ch
	second := <-ch
	assert.Equal(t, SessionStart, first.Kind)
	assert.Equal(t, UserInput, second.Kind)

	se.AssistantTextStart()
	select {
	case third := <-ch:
		assert.Equal(t, AssistantTextStart, third.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestBufferedEmitterPreservesGlobalOrderAcrossSubscribers(t *testing.T) {
	bus := NewBufferedEmitter(16)
	se := NewSessionEmitter("s1", bus)
	se.SessionStart()

	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	se.UserInput("a")
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()
	se.UserInput("b")

	require.Equal(t, SessionStart, (<-ch1).Kind)
	require.Equal(t, UserInput, (<-ch1).Kind)
	require.Equal(t, UserInput, (<-ch1).Kind)

	require.Equal(t, SessionStart, (<-ch2).Kind)
	require.Equal(t, UserInput, (<-ch2).Kind)
	require.Equal(t, UserInput, (<-ch2).Kind)
}

func TestKindSerializesScreamingSnakeCase(t *testing.T) {
	b, err := SessionStart.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"SESSION_START"`, string(b))

	var k Kind
	require.NoError(t, k.UnmarshalJSON([]byte(`"LOOP_DETECTION"`)))
	assert.Equal(t, LoopDetection, k)
}

func TestNoopEmitterNeverFails(t *testing.T) {
	var e NoopEmitter
	e.Emit(Event{Kind: Warning})
	ch, unsub := e.Subscribe()
	_, ok := <-ch
	assert.False(t, ok)
	unsub()
}
