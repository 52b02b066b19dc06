package lineage

import "context"

// Store is the full Append-Only Lineage Store capability consumed by
// the Session Engine and Pipeline Runner. Implementations
// must serialise conflicting appends within one context.
type Store interface {
	CreateContext(ctx context.Context, baseTurnID string) (Context, error)
	ForkContext(ctx context.Context, fromTurnID string) (Context, error)
	AppendTurn(ctx context.Context, req AppendRequest) (StoredTurn, error)
	GetHead(ctx context.Context, contextID string) (Context, error)
	ListTurns(ctx context.Context, contextID string, beforeTurnID string, limit int) ([]StoredTurn, error)

	PutBlob(ctx context.Context, data []byte) (hash string, err error)
	GetBlob(ctx context.Context, hash string) ([]byte, error)

	AttachFS(ctx context.Context, turnID string, fsRootHash string) error

	PublishRegistryBundle(ctx context.Context, bundle RegistryBundle) error
	GetRegistryBundle(ctx context.Context, bundleID string) (RegistryBundle, error)
}

// ErrNotFound is returned when a context, turn, or blob does not exist.
type ErrNotFound struct{ What string }

func (e *ErrNotFound) Error() string { return "lineage: not found: " + e.What }

// ErrHashMismatch is returned when a caller-supplied ContentHash does
// not match BLAKE3(payload).
type ErrHashMismatch struct{}

func (e *ErrHashMismatch) Error() string { return "lineage: content hash mismatch" }

// ErrDiverged is returned when an append's resolved parent is not the
// current head (chain would diverge outside of an explicit fork).
type ErrDiverged struct{}

func (e *ErrDiverged) Error() string {
	return "lineage: append would diverge the chain; use fork_context instead"
}
