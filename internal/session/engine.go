// Package session implements the Session Engine:
// the main round-loop state machine driving one conversation with an
// LLM, tool dispatch, steering, sub-agent spawning, and lineage
// persistence around an explicit four-state machine
// (Idle/Processing/AwaitingInput/Closed).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/env"
	"github.com/forgehq/forge/internal/eventbus"
	"github.com/forgehq/forge/internal/lineage"
	"github.com/forgehq/forge/internal/llm"
	"github.com/forgehq/forge/internal/models"
	"github.com/forgehq/forge/internal/obs"
	"github.com/forgehq/forge/internal/subagent"
	"github.com/forgehq/forge/internal/tooling"
)

// Deps bundles the collaborators a Session drives. The LLM Client and
// ExecutionEnvironment arrive as injected capabilities; the rest are
// the components this session wires together.
type Deps struct {
	LLMClient  llm.Client
	Env        env.ExecutionEnvironment
	Lineage    lineage.Store
	Bus        eventbus.Emitter
	Registry   *tooling.Registry
	Dispatcher *tooling.Dispatcher
	Provider   string
	Model      string
	Layers     PromptLayers
	PreHook    tooling.PreHook
	PostHook   tooling.PostHook
	Logger     *slog.Logger

	// AsyncPatterns and AsyncJobStore enable the check_job background
	// dispatch path. Leave AsyncJobStore nil to dispatch
	// every tool call synchronously.
	AsyncPatterns []string
	AsyncJobStore tooling.AsyncJobStore

	// Metrics records LLM call latency/token counts against the shared
	// Prometheus collectors. Nil disables metrics recording.
	Metrics *obs.Metrics

	// Tracer wraps each LLM Complete call in a span. Nil disables tracing.
	Tracer *obs.Tracer

	// WorkDir is the base directory spawn_agent resolves a relative
	// working_dir against. Empty uses the process's cwd.
	WorkDir string

	// AuditLogger records tool invocations/completions, compaction, and
	// sub-agent handoffs with the privacy controls (input hashing, field
	// truncation) audit.Config configures, alongside the coarser
	// EventBus stream audit.BridgeFromBus already mirrors. Nil disables
	// this session's direct audit calls without affecting the bridge.
	AuditLogger *audit.SessionLogger
}

// Session is one Session Engine instance.
type Session struct {
	id     string
	mu     sync.Mutex
	state  models.SessionState
	config models.SessionConfig
	history []models.Turn

	steering    *steeringQueue
	loopMessage string

	deps       Deps
	emitter    *eventbus.SessionEmitter
	supervisor *subagent.Supervisor

	contextID  *string
	headTurnID *string

	aborted   atomic.Bool
	abortCh   chan struct{}
	abortOnce sync.Once

	subagentDepth int

	seq       atomic.Uint64
	startOnce sync.Once
	closeOnce sync.Once
	startedAt time.Time
}

// New builds a fresh Idle Session.
func New(id string, cfg models.SessionConfig, deps Deps, subagentDepth int) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Session{
		id:            id,
		state:         models.SessionIdle,
		config:        cfg,
		steering:      newSteeringQueue(),
		deps:          deps,
		emitter:       eventbus.NewSessionEmitter(id, deps.Bus),
		abortCh:       make(chan struct{}),
		subagentDepth: subagentDepth,
	}
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// State returns the current SessionState.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RequestAbort signals cooperative cancellation.
func (s *Session) RequestAbort() {
	s.aborted.Store(true)
	s.abortOnce.Do(func() { close(s.abortCh) })
}

// AbortHandle returns a channel closed when abort has been requested.
func (s *Session) AbortHandle() <-chan struct{} { return s.abortCh }

// Steer enqueues a mid-run steering message; fails if the session is
// Closed.
func (s *Session) Steer(message string) error {
	if s.State() == models.SessionClosed {
		return models.NewError(KindClosed, "session is closed")
	}
	s.steering.Steer(message)
	return nil
}

// FollowUp enqueues a post-run follow-up message; fails if the session
// is Closed.
func (s *Session) FollowUp(message string) error {
	if s.State() == models.SessionClosed {
		return models.NewError(KindClosed, "session is closed")
	}
	s.steering.FollowUp(message)
	return nil
}

// SetReasoningEffort validates and sets (or clears) the session's
// default reasoning effort.
func (s *Session) SetReasoningEffort(effort string) error {
	if effort == "" {
		s.mu.Lock()
		s.config.ReasoningEffort = ""
		s.mu.Unlock()
		return nil
	}
	valid, ok := models.ValidReasoningEffort(effort)
	if !ok {
		return models.NewError(KindInvalidReasoningEffort, "invalid reasoning effort: "+effort)
	}
	s.mu.Lock()
	s.config.ReasoningEffort = valid
	s.mu.Unlock()
	return nil
}

// Close performs the terminal transition. Transitioning into Closed
// emits exactly one SESSION_END event and records exactly one
// session_end lineage entry, even across repeated calls.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.state
	s.state = models.SessionClosed
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		s.emitter.SessionEnd(string(models.SessionClosed))
		s.persistSessionLifecycle(context.Background(), "ended", string(models.SessionClosed))
		obs.EmitSessionState(&obs.SessionStateEvent{
			SessionID: s.id,
			PrevState: diagnosticState(prev),
			State:     obs.SessionStateClosed,
		})
		if s.deps.Metrics != nil && !s.startedAt.IsZero() {
			s.deps.Metrics.SessionEnded(resolveProvider(s.deps.Provider, models.SubmitOptions{}), time.Since(s.startedAt).Seconds())
		}
	})
}

// SubscribeEvents subscribes to this session's event bus.
func (s *Session) SubscribeEvents() (<-chan eventbus.Event, func()) {
	if buffered, ok := s.deps.Bus.(*eventbus.BufferedEmitter); ok {
		return buffered.Subscribe()
	}
	return s.deps.Bus.Subscribe()
}

// PersistenceSnapshot returns the minimal lineage pointer.
func (s *Session) PersistenceSnapshot() models.PersistenceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.PersistenceSnapshot{SessionID: s.id, ContextID: s.contextID, HeadTurnID: s.headTurnID}
}

// TurnsUsed reports len(history) for sub-agent wait{} accounting.
func (s *Session) TurnsUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// LastAssistantText implements subagent.Runner: returns the last
// assistant turn's text and whether it issued tool calls.
func (s *Session) LastAssistantText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		t := s.history[i]
		if t.Kind == models.TurnAssistant {
			return t.Text, t.HasToolCalls()
		}
	}
	return "", false
}

// Submit drives the round loop until the pipeline settles.
func (s *Session) Submit(ctx context.Context, input string, opts models.SubmitOptions) (models.SubmitResult, error) {
	return s.submitSingle(ctx, input, opts)
}

// looksLikeQuestion reports whether text, trimmed, ends with '?' and
// contains at least three alphabetic words.
func looksLikeQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasSuffix(trimmed, "?") {
		return false
	}
	words := strings.Fields(trimmed)
	alpha := 0
	for _, w := range words {
		for _, r := range w {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				alpha++
				break
			}
		}
	}
	return alpha >= 3
}

func persistenceRequired(cfg models.SessionConfig) bool {
	return cfg.PersistenceMode == models.PersistenceRequired
}

// nextSeq allocates the next monotonic sequence number used both in a
// persisted record's SequenceNo field and as the counter component of
// its idempotency key.
func (s *Session) nextSeq() uint64 { return s.seq.Add(1) }

func (s *Session) persistTurn(ctx context.Context, typeID string, version int, eventKind string, payload []byte) error {
	return s.appendLineage(ctx, typeID, version, eventKind, s.nextSeq(), payload)
}

// persistTurnRecord wraps t in a lineage.TurnRecord envelope, populating
// SessionID/Timestamp/ThreadKey/SequenceNo/FSRootHash from the session
// before handing it to appendLineage, so the envelope's SequenceNo
// always matches the seq component of the entry's idempotency key.
func (s *Session) persistTurnRecord(ctx context.Context, typeID string, version int, eventKind string, t models.Turn) error {
	seq := s.nextSeq()
	fsHash := s.fsSnapshotHash()
	rec := lineage.TurnRecord{
		SessionID:  s.id,
		Timestamp:  time.Now(),
		Turn:       mustJSONRaw(t),
		SequenceNo: seq,
		ThreadKey:  s.config.ThreadKey,
		FSRootHash: fsHash,
	}
	if s.config.FSSnapshotPolicy != models.FSSnapshotNone {
		rec.SnapshotPolicyID = string(s.config.FSSnapshotPolicy)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return models.Wrap(models.Kind("Storage.MarshalFailed"), err)
	}
	return s.appendLineage(ctx, typeID, version, eventKind, seq, payload)
}

// appendLineage is the common tail of persistTurn/persistTurnRecord: it
// appends payload against the already-allocated seq, deriving both the
// idempotency key and the fs_root_hash column from it.
func (s *Session) appendLineage(ctx context.Context, typeID string, version int, eventKind string, seq uint64, payload []byte) error {
	if s.deps.Lineage == nil || s.contextID == nil {
		if persistenceRequired(s.config) {
			return models.NewError(models.Kind("Storage.Unavailable"), "lineage persistence required but no context open")
		}
		return nil
	}
	parent := lineage.RootSentinel
	if s.headTurnID != nil {
		parent = *s.headTurnID
	}
	turn, err := s.deps.Lineage.AppendTurn(ctx, lineage.AppendRequest{
		ContextID:      *s.contextID,
		ParentTurnID:   parent,
		TypeID:         typeID,
		TypeVersion:    version,
		Payload:        payload,
		IdempotencyKey: lineage.SessionIdempotencyKey(s.id, seq, eventKind),
		FSRootHash:     s.fsSnapshotHash(),
	})
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordError("session", "lineage_append_failed")
		}
		if persistenceRequired(s.config) {
			return models.Wrap(models.Kind("Storage.AppendFailed"), err)
		}
		s.deps.Logger.Warn("lineage append failed, continuing (persistence optional)", "error", err)
		return nil
	}
	id := turn.TurnID
	s.headTurnID = &id
	return nil
}

// persistSessionLifecycle appends a session_lifecycle{started|ended}
// record, swallowing errors the same way Close's
// best-effort SessionEnd emission does: the lifecycle transition must
// complete regardless of whether lineage is configured or reachable.
func (s *Session) persistSessionLifecycle(ctx context.Context, kind, finalState string) {
	rec := lineage.SessionLifecycleRecord{
		Kind:       kind,
		SessionID:  s.id,
		Timestamp:  time.Now(),
		FinalState: finalState,
		ThreadKey:  s.config.ThreadKey,
		FSRootHash: s.fsSnapshotHash(),
	}
	if s.config.FSSnapshotPolicy != models.FSSnapshotNone {
		rec.SnapshotPolicyID = string(s.config.FSSnapshotPolicy)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = s.persistTurn(ctx, lineage.TypeSessionLifecycle, lineage.VersionSessionLifecycle, "session_lifecycle."+kind, payload)
}

// fsSnapshotHash computes a workspace content hash for the active
// FSSnapshotPolicy. An
// empty policy (the default) disables snapshotting entirely;
// workspace hashing is opt-in because it touches every file.
func (s *Session) fsSnapshotHash() string {
	if s.config.FSSnapshotPolicy == models.FSSnapshotNone {
		return ""
	}
	root := s.deps.WorkDir
	if root == "" {
		return ""
	}
	manifest, err := snapshotManifest(root)
	if err != nil {
		return ""
	}
	return lineage.ContentHash(manifest)
}

// snapshotManifest builds a deterministic, sorted listing of relative
// path/size/mtime triples under root, hashed by fsSnapshotHash into the
// fs_root_hash recorded against each turn. It does not read file
// contents: a manifest hash is enough to detect a changed workspace
// without the cost of re-hashing every file on every turn.
func snapshotManifest(root string) ([]byte, error) {
	var entries []string
	err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}
		entries = append(entries, fmt.Sprintf("%s:%d:%d", rel, info.Size(), info.ModTime().UnixNano()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return []byte(strings.Join(entries, "\n")), nil
}
