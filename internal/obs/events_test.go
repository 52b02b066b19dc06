package obs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAttachedTimeline(t *testing.T, capacity int) *Timeline {
	t.Helper()
	ResetDiagnosticsForTest()
	SetDiagnosticsEnabled(true)
	tl := NewTimeline(capacity)
	tl.Attach()
	t.Cleanup(func() {
		tl.Close()
		SetDiagnosticsEnabled(false)
		ResetDiagnosticsForTest()
	})
	return tl
}

func TestTimelineRecordsEmittedEvents(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	EmitSessionState(&SessionStateEvent{SessionID: "s1", State: SessionStateProcessing})
	EmitRunAttempt(&RunAttemptEvent{RunID: "r1", NodeID: "work", Attempt: 1})

	events := tl.Recent(0)
	if len(events) != 2 {
		t.Fatalf("Recent(0) returned %d events, want 2", len(events))
	}
	if events[0].EventType() != EventTypeSessionState {
		t.Fatalf("first event type = %s, want %s", events[0].EventType(), EventTypeSessionState)
	}
	if events[1].Sequence() <= events[0].Sequence() {
		t.Fatalf("sequence numbers not increasing: %d then %d", events[0].Sequence(), events[1].Sequence())
	}
}

func TestTimelineDropsOldestBeyondCapacity(t *testing.T) {
	tl := newAttachedTimeline(t, 3)

	for i := 0; i < 5; i++ {
		EmitRunAttempt(&RunAttemptEvent{RunID: "r1", NodeID: "work", Attempt: i})
	}

	events := tl.Recent(0)
	if len(events) != 3 {
		t.Fatalf("window holds %d events, want capacity 3", len(events))
	}
	if got := events[0].(*RunAttemptEvent).Attempt; got != 2 {
		t.Fatalf("oldest retained attempt = %d, want 2", got)
	}
}

func TestTimelineRecentLimits(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	for i := 0; i < 4; i++ {
		EmitSessionStuck(&SessionStuckEvent{SessionID: "s1", Reason: "max_tool_rounds", Limit: i})
	}

	events := tl.Recent(2)
	if len(events) != 2 {
		t.Fatalf("Recent(2) returned %d events", len(events))
	}
	if got := events[1].(*SessionStuckEvent).Limit; got != 3 {
		t.Fatalf("newest event limit = %d, want 3", got)
	}
}

func TestTimelineSince(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	EmitSessionState(&SessionStateEvent{SessionID: "s1", State: SessionStateIdle})
	mark := tl.Recent(1)[0].Sequence()
	EmitSessionState(&SessionStateEvent{SessionID: "s1", State: SessionStateClosed})

	events := tl.Since(mark)
	if len(events) != 1 {
		t.Fatalf("Since(%d) returned %d events, want 1", mark, len(events))
	}
	if got := events[0].(*SessionStateEvent).State; got != SessionStateClosed {
		t.Fatalf("event state = %s, want closed", got)
	}
}

func TestTimelineSummary(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	EmitSessionState(&SessionStateEvent{SessionID: "s1", State: SessionStateProcessing})
	EmitRunAttempt(&RunAttemptEvent{RunID: "r1", NodeID: "a", Attempt: 0})
	EmitRunAttempt(&RunAttemptEvent{RunID: "r1", NodeID: "b", Attempt: 0})

	summary := tl.Summary()
	if summary[EventTypeSessionState] != 1 || summary[EventTypeRunAttempt] != 2 {
		t.Fatalf("summary = %v", summary)
	}
}

func TestTimelineCloseStopsRecording(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	EmitRunAttempt(&RunAttemptEvent{RunID: "r1", NodeID: "a", Attempt: 0})
	tl.Close()
	EmitRunAttempt(&RunAttemptEvent{RunID: "r1", NodeID: "b", Attempt: 0})

	if got := len(tl.Recent(0)); got != 1 {
		t.Fatalf("window holds %d events after Close, want 1", got)
	}
}

func TestTimelineServeHTTP(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	EmitModelUsage(&ModelUsageEvent{
		SessionID: "s1",
		Provider:  "anthropic",
		Model:     "claude-opus-4",
		Usage:     UsageDetails{Input: 10, Output: 20, Total: 30},
	})

	rec := httptest.NewRecorder()
	tl.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/timeline", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Summary map[string]int    `json:"summary"`
		Events  []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Events) != 1 || body.Summary[string(EventTypeModelUsage)] != 1 {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestTimelineServeHTTPRejectsBadQuery(t *testing.T) {
	tl := newAttachedTimeline(t, 0)

	rec := httptest.NewRecorder()
	tl.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/timeline?since=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("since=abc status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	tl.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/timeline", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", rec.Code)
	}
}
