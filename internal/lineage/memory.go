package lineage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory lineage backend, the first of the
// three parity backends; the default when no DSN is configured.
type MemoryStore struct {
	mu sync.Mutex

	idempotencyTTL time.Duration

	contexts map[string]*Context
	turns    map[string]map[string]StoredTurn // contextID -> turnID -> turn
	blobs    map[string][]byte
	bundles  map[string]RegistryBundle
	idemp    map[string]map[string]idempotencyEntry // contextID -> idempotencyKey -> entry
}

// NewMemoryStore returns an empty MemoryStore with the given idempotency
// TTL (DefaultIdempotencyTTL when ttl <= 0).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryStore{
		idempotencyTTL: ttl,
		contexts:       make(map[string]*Context),
		turns:          make(map[string]map[string]StoredTurn),
		blobs:          make(map[string][]byte),
		bundles:        make(map[string]RegistryBundle),
		idemp:          make(map[string]map[string]idempotencyEntry),
	}
}

func (s *MemoryStore) CreateContext(_ context.Context, baseTurnID string) (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContextLocked(baseTurnID)
}

func (s *MemoryStore) createContextLocked(baseTurnID string) (Context, error) {
	contextID := uuid.NewString()
	c := &Context{ContextID: contextID, HeadTurnID: RootSentinel, HeadDepth: 0}

	if baseTurnID != "" && baseTurnID != RootSentinel {
		// Locate the base turn across all existing contexts and copy its
		// chain up to and including it into the new context, so the new
		// context's head is the fork point.
		baseCtx, baseTurn, ok := s.findTurnLocked(baseTurnID)
		if !ok {
			return Context{}, &ErrNotFound{What: "turn " + baseTurnID}
		}
		chain := s.chainUpToLocked(baseCtx, baseTurnID)
		s.turns[contextID] = make(map[string]StoredTurn, len(chain))
		for _, t := range chain {
			copied := t
			copied.ContextID = contextID
			s.turns[contextID][copied.TurnID] = copied
		}
		c.HeadTurnID = baseTurn.TurnID
		c.HeadDepth = baseTurn.Depth
	} else {
		s.turns[contextID] = make(map[string]StoredTurn)
	}

	s.contexts[contextID] = c
	s.idemp[contextID] = make(map[string]idempotencyEntry)
	out := *c
	return out, nil
}

func (s *MemoryStore) ForkContext(ctx context.Context, fromTurnID string) (Context, error) {
	return s.CreateContext(ctx, fromTurnID)
}

func (s *MemoryStore) findTurnLocked(turnID string) (contextID string, turn StoredTurn, ok bool) {
	for cid, byID := range s.turns {
		if t, found := byID[turnID]; found {
			return cid, t, true
		}
	}
	return "", StoredTurn{}, false
}

func (s *MemoryStore) chainUpToLocked(contextID, turnID string) []StoredTurn {
	byID := s.turns[contextID]
	var chain []StoredTurn
	cur := turnID
	for cur != "" && cur != RootSentinel {
		t, ok := byID[cur]
		if !ok {
			break
		}
		chain = append([]StoredTurn{t}, chain...)
		cur = t.ParentTurnID
	}
	return chain
}

func (s *MemoryStore) AppendTurn(_ context.Context, req AppendRequest) (StoredTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[req.ContextID]
	if !ok {
		return StoredTurn{}, &ErrNotFound{What: "context " + req.ContextID}
	}

	if req.IdempotencyKey != "" {
		if entry, found := s.idemp[req.ContextID][req.IdempotencyKey]; found {
			if !entry.expired(time.Now()) {
				return entry.turn, nil
			}
			delete(s.idemp[req.ContextID], req.IdempotencyKey)
		}
	}

	parent := req.ParentTurnID
	if parent == "" {
		parent = RootSentinel
	}
	resolvedParent := parent
	if resolvedParent == RootSentinel || resolvedParent == "" {
		resolvedParent = c.HeadTurnID
	}

	if resolvedParent != c.HeadTurnID {
		return StoredTurn{}, &ErrDiverged{}
	}

	hash := ContentHash(req.Payload)
	if req.ContentHash != "" && req.ContentHash != hash {
		return StoredTurn{}, &ErrHashMismatch{}
	}

	depth := 0
	if resolvedParent != RootSentinel {
		parentTurn, ok := s.turns[req.ContextID][resolvedParent]
		if !ok {
			return StoredTurn{}, &ErrNotFound{What: "parent turn " + resolvedParent}
		}
		depth = parentTurn.Depth + 1
	}

	turn := StoredTurn{
		ContextID:      req.ContextID,
		TurnID:         uuid.NewString(),
		ParentTurnID:   resolvedParent,
		Depth:          depth,
		TypeID:         req.TypeID,
		TypeVersion:    req.TypeVersion,
		Payload:        append([]byte(nil), req.Payload...),
		IdempotencyKey: req.IdempotencyKey,
		ContentHash:    hash,
		FSRootHash:     req.FSRootHash,
		CreatedAt:      time.Now(),
	}

	s.turns[req.ContextID][turn.TurnID] = turn
	c.HeadTurnID = turn.TurnID
	c.HeadDepth = turn.Depth

	if req.IdempotencyKey != "" {
		s.idemp[req.ContextID][req.IdempotencyKey] = idempotencyEntry{
			turn:     turn,
			expireAt: time.Now().Add(s.idempotencyTTL),
		}
	}

	return turn, nil
}

func (s *MemoryStore) GetHead(_ context.Context, contextID string) (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[contextID]
	if !ok {
		return Context{}, &ErrNotFound{What: "context " + contextID}
	}
	return *c, nil
}

func (s *MemoryStore) ListTurns(_ context.Context, contextID string, beforeTurnID string, limit int) ([]StoredTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[contextID]
	if !ok {
		return nil, &ErrNotFound{What: "context " + contextID}
	}

	end := beforeTurnID
	if end == "" {
		end = c.HeadTurnID
	}

	var fullChain []StoredTurn
	if end != RootSentinel {
		if beforeTurnID == "" {
			fullChain = s.chainUpToLocked(contextID, end)
		} else {
			// chain ending immediately before beforeTurnID
			t, ok := s.turns[contextID][beforeTurnID]
			if !ok {
				return nil, &ErrNotFound{What: "turn " + beforeTurnID}
			}
			fullChain = s.chainUpToLocked(contextID, t.ParentTurnID)
		}
	}

	if limit <= 0 || limit >= len(fullChain) {
		return fullChain, nil
	}
	return fullChain[len(fullChain)-limit:], nil
}

func (s *MemoryStore) PutBlob(_ context.Context, data []byte) (string, error) {
	hash := ContentHash(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[hash] = append([]byte(nil), data...)
	return hash, nil
}

func (s *MemoryStore) GetBlob(_ context.Context, hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, &ErrNotFound{What: "blob " + hash}
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) AttachFS(_ context.Context, turnID string, fsRootHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cid, turn, ok := s.findTurnLocked(turnID)
	if !ok {
		return &ErrNotFound{What: "turn " + turnID}
	}
	turn.FSRootHash = fsRootHash
	s.turns[cid][turnID] = turn
	return nil
}

func (s *MemoryStore) PublishRegistryBundle(_ context.Context, bundle RegistryBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[bundle.BundleID] = bundle
	return nil
}

func (s *MemoryStore) GetRegistryBundle(_ context.Context, bundleID string) (RegistryBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bundleID]
	if !ok {
		return RegistryBundle{}, &ErrNotFound{What: "registry bundle " + bundleID}
	}
	return b, nil
}

var _ Store = (*MemoryStore)(nil)
