// Package lineage implements the append-only lineage store: a typed,
// content-hashed, idempotent append-only turn
// log over (context, parent) chains, with three interchangeable
// backends (in-memory, sqlite, postgres) that must pass the same
// contract suite.
package lineage

import (
	"encoding/json"
	"time"
)

// RootSentinel is the parent id of a context's root turn.
const RootSentinel = "0"

// StoredTurn is one immutable, content-hashed record in a lineage
// context.
type StoredTurn struct {
	ContextID       string          `json:"context_id" msgpack:"1"`
	TurnID          string          `json:"turn_id" msgpack:"2"`
	ParentTurnID    string          `json:"parent_turn_id" msgpack:"3"`
	Depth           int             `json:"depth" msgpack:"4"`
	TypeID          string          `json:"type_id" msgpack:"5"`
	TypeVersion     int             `json:"type_version" msgpack:"6"`
	Payload         []byte          `json:"payload" msgpack:"7"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" msgpack:"8"`
	ContentHash     string          `json:"content_hash" msgpack:"9"`
	FSRootHash      string          `json:"fs_root_hash,omitempty" msgpack:"10"`
	CreatedAt       time.Time       `json:"created_at" msgpack:"11"`
}

// Context is the handle returned by create_context/fork_context.
type Context struct {
	ContextID  string `json:"context_id"`
	HeadTurnID string `json:"head_turn_id"`
	HeadDepth  int    `json:"head_depth"`
}

// AppendRequest is the input to AppendTurn.
type AppendRequest struct {
	ContextID      string
	ParentTurnID   string // "" or RootSentinel means "current head"
	TypeID         string
	TypeVersion    int
	Payload        []byte
	IdempotencyKey string
	FSRootHash     string
	// ContentHash, if non-empty, MUST match BLAKE3(Payload); this lets a
	// caller that already computed the hash assert it rather than
	// trusting the store to recompute silently.
	ContentHash string
}

// RegistryBundle declares the recognized type_ids and their field
// layouts, published once per runtime instance.
type RegistryBundle struct {
	RegistryVersion int                        `json:"registry_version"`
	BundleID        string                     `json:"bundle_id"`
	Types           map[string]RegistryTypeDef `json:"types"`
}

// RegistryTypeDef is one type_id's version history within a bundle.
type RegistryTypeDef struct {
	Versions map[string]RegistryVersionDef `json:"versions"`
}

// RegistryVersionDef is one version's field layout.
type RegistryVersionDef struct {
	Fields map[string]RegistryFieldDef `json:"fields"`
}

// RegistryFieldDef describes one field's msgpack tag mirror.
type RegistryFieldDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// marshalPayload is a small helper most callers use to build Payload
// from a typed record: JSON is the canonical on-disk form; msgpack
// decoding of the same bytes is exercised via DecodeAs (codec.go).
func marshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}
