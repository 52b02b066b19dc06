package lineage

import (
	"fmt"
	"time"
)

// DefaultIdempotencyTTL is the dedup retention window for
// (context_id, idempotency_key) pairs. 24h comfortably outlives any
// retrying producer while keeping the dedup index bounded.
const DefaultIdempotencyTTL = 24 * time.Hour

// SessionIdempotencyKey builds the deterministic key format for
// session-engine records:
// forge-agent:v1|len:session_id|sequence_no|len:event_kind
func SessionIdempotencyKey(sessionID string, sequenceNo uint64, eventKind string) string {
	return fmt.Sprintf("forge-agent:v1|%d:%s|%d|%d:%s",
		len(sessionID), sessionID, sequenceNo, len(eventKind), eventKind)
}

// RunnerIdempotencyKey builds the deterministic key format for runner
// records:
// forge-attractor:v1|len:run_id|len:node_id|len:stage_attempt_id|len:event_kind|sequence_no
func RunnerIdempotencyKey(runID, nodeID, stageAttemptID, eventKind string, sequenceNo uint64) string {
	return fmt.Sprintf("forge-attractor:v1|%d:%s|%d:%s|%d:%s|%d:%s|%d",
		len(runID), runID, len(nodeID), nodeID, len(stageAttemptID), stageAttemptID,
		len(eventKind), eventKind, sequenceNo)
}

// idempotencyEntry tracks when a (context_id, idempotency_key) pair was
// last observed, so a backend can expire it after DefaultIdempotencyTTL
// (or a configured override).
type idempotencyEntry struct {
	turn     StoredTurn
	expireAt time.Time
}

func (e idempotencyEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}
