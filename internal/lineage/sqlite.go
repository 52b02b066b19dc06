package lineage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the filesystem-backed parity backend: a single
// embedded database file holding the schema below.
type SQLiteStore struct {
	db             *sql.DB
	idempotencyTTL time.Duration
	mu             sync.Mutex // serializes appends per the single-writer-per-context rule
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed lineage
// store at path, which may be ":memory:" for tests.
func OpenSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite lineage store: %w", err)
	}
	s := &SQLiteStore{db: db, idempotencyTTL: ttl}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS contexts (
	context_id TEXT PRIMARY KEY,
	head_turn_id TEXT NOT NULL,
	head_depth INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS turns (
	context_id TEXT NOT NULL,
	turn_id TEXT NOT NULL,
	parent_turn_id TEXT NOT NULL,
	depth INTEGER NOT NULL,
	type_id TEXT NOT NULL,
	type_version INTEGER NOT NULL,
	payload BLOB NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	fs_root_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (context_id, turn_id)
);
CREATE INDEX IF NOT EXISTS idx_turns_parent ON turns(context_id, parent_turn_id);
CREATE INDEX IF NOT EXISTS idx_turns_idempotency ON turns(context_id, idempotency_key);
CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS registry_bundles (
	bundle_id TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS idempotency (
	context_id TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	turn_id TEXT NOT NULL,
	expire_at TIMESTAMP NOT NULL,
	PRIMARY KEY (context_id, idempotency_key)
);`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateContext(ctx context.Context, baseTurnID string) (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contextID := uuid.NewString()
	c := Context{ContextID: contextID, HeadTurnID: RootSentinel, HeadDepth: 0}

	if baseTurnID != "" && baseTurnID != RootSentinel {
		row := s.db.QueryRowContext(ctx, `SELECT context_id, depth FROM turns WHERE turn_id = ?`, baseTurnID)
		var baseContextID string
		var baseDepth int
		if err := row.Scan(&baseContextID, &baseDepth); err != nil {
			if err == sql.ErrNoRows {
				return Context{}, &ErrNotFound{What: "turn " + baseTurnID}
			}
			return Context{}, err
		}

		rows, err := s.db.QueryContext(ctx, `
			WITH RECURSIVE chain(turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at) AS (
				SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at
				FROM turns WHERE context_id = ? AND turn_id = ?
				UNION ALL
				SELECT t.turn_id, t.parent_turn_id, t.depth, t.type_id, t.type_version, t.payload, t.idempotency_key, t.content_hash, t.fs_root_hash, t.created_at
				FROM turns t JOIN chain ON t.turn_id = chain.parent_turn_id WHERE t.context_id = ?
			)
			SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at FROM chain
		`, baseContextID, baseTurnID, baseContextID)
		if err != nil {
			return Context{}, err
		}
		defer rows.Close()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return Context{}, err
		}
		defer tx.Rollback()

		for rows.Next() {
			var t StoredTurn
			if err := rows.Scan(&t.TurnID, &t.ParentTurnID, &t.Depth, &t.TypeID, &t.TypeVersion, &t.Payload,
				&t.IdempotencyKey, &t.ContentHash, &t.FSRootHash, &t.CreatedAt); err != nil {
				return Context{}, err
			}
			t.ContextID = contextID
			if _, err := tx.ExecContext(ctx, `INSERT INTO turns
				(context_id, turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at)
				VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
				t.ContextID, t.TurnID, t.ParentTurnID, t.Depth, t.TypeID, t.TypeVersion, t.Payload,
				t.IdempotencyKey, t.ContentHash, t.FSRootHash, t.CreatedAt); err != nil {
				return Context{}, err
			}
		}
		if err := rows.Err(); err != nil {
			return Context{}, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO contexts (context_id, head_turn_id, head_depth) VALUES (?,?,?)`,
			contextID, baseTurnID, baseDepth); err != nil {
			return Context{}, err
		}
		if err := tx.Commit(); err != nil {
			return Context{}, err
		}
		c.HeadTurnID = baseTurnID
		c.HeadDepth = baseDepth
		return c, nil
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO contexts (context_id, head_turn_id, head_depth) VALUES (?,?,?)`,
		contextID, RootSentinel, 0); err != nil {
		return Context{}, err
	}
	return c, nil
}

func (s *SQLiteStore) ForkContext(ctx context.Context, fromTurnID string) (Context, error) {
	return s.CreateContext(ctx, fromTurnID)
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, req AppendRequest) (StoredTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var headTurnID string
	if err := s.db.QueryRowContext(ctx, `SELECT head_turn_id FROM contexts WHERE context_id = ?`, req.ContextID).
		Scan(&headTurnID); err != nil {
		if err == sql.ErrNoRows {
			return StoredTurn{}, &ErrNotFound{What: "context " + req.ContextID}
		}
		return StoredTurn{}, err
	}

	if req.IdempotencyKey != "" {
		var turnID string
		var expireAt time.Time
		err := s.db.QueryRowContext(ctx, `SELECT turn_id, expire_at FROM idempotency WHERE context_id = ? AND idempotency_key = ?`,
			req.ContextID, req.IdempotencyKey).Scan(&turnID, &expireAt)
		if err == nil && time.Now().Before(expireAt) {
			return s.getTurn(ctx, req.ContextID, turnID)
		}
	}

	parent := req.ParentTurnID
	if parent == "" || parent == RootSentinel {
		parent = headTurnID
	}
	if parent != headTurnID {
		return StoredTurn{}, &ErrDiverged{}
	}

	hash := ContentHash(req.Payload)
	if req.ContentHash != "" && req.ContentHash != hash {
		return StoredTurn{}, &ErrHashMismatch{}
	}

	depth := 0
	if parent != RootSentinel {
		var parentDepth int
		if err := s.db.QueryRowContext(ctx, `SELECT depth FROM turns WHERE context_id = ? AND turn_id = ?`, req.ContextID, parent).
			Scan(&parentDepth); err != nil {
			return StoredTurn{}, &ErrNotFound{What: "parent turn " + parent}
		}
		depth = parentDepth + 1
	}

	turn := StoredTurn{
		ContextID: req.ContextID, TurnID: uuid.NewString(), ParentTurnID: parent, Depth: depth,
		TypeID: req.TypeID, TypeVersion: req.TypeVersion, Payload: req.Payload,
		IdempotencyKey: req.IdempotencyKey, ContentHash: hash, FSRootHash: req.FSRootHash,
		CreatedAt: time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoredTurn{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO turns
		(context_id, turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		turn.ContextID, turn.TurnID, turn.ParentTurnID, turn.Depth, turn.TypeID, turn.TypeVersion, turn.Payload,
		turn.IdempotencyKey, turn.ContentHash, turn.FSRootHash, turn.CreatedAt); err != nil {
		return StoredTurn{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE contexts SET head_turn_id = ?, head_depth = ? WHERE context_id = ?`,
		turn.TurnID, turn.Depth, req.ContextID); err != nil {
		return StoredTurn{}, err
	}
	if req.IdempotencyKey != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO idempotency (context_id, idempotency_key, turn_id, expire_at) VALUES (?,?,?,?)`,
			req.ContextID, req.IdempotencyKey, turn.TurnID, time.Now().Add(s.idempotencyTTL)); err != nil {
			return StoredTurn{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return StoredTurn{}, err
	}
	return turn, nil
}

func (s *SQLiteStore) getTurn(ctx context.Context, contextID, turnID string) (StoredTurn, error) {
	var t StoredTurn
	t.ContextID = contextID
	err := s.db.QueryRowContext(ctx, `SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at
		FROM turns WHERE context_id = ? AND turn_id = ?`, contextID, turnID).
		Scan(&t.TurnID, &t.ParentTurnID, &t.Depth, &t.TypeID, &t.TypeVersion, &t.Payload, &t.IdempotencyKey, &t.ContentHash, &t.FSRootHash, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return StoredTurn{}, &ErrNotFound{What: "turn " + turnID}
	}
	return t, err
}

func (s *SQLiteStore) GetHead(ctx context.Context, contextID string) (Context, error) {
	var c Context
	c.ContextID = contextID
	err := s.db.QueryRowContext(ctx, `SELECT head_turn_id, head_depth FROM contexts WHERE context_id = ?`, contextID).
		Scan(&c.HeadTurnID, &c.HeadDepth)
	if err == sql.ErrNoRows {
		return Context{}, &ErrNotFound{What: "context " + contextID}
	}
	return c, err
}

func (s *SQLiteStore) ListTurns(ctx context.Context, contextID string, beforeTurnID string, limit int) ([]StoredTurn, error) {
	head, err := s.GetHead(ctx, contextID)
	if err != nil {
		return nil, err
	}
	end := beforeTurnID
	if end == "" {
		end = head.HeadTurnID
	} else {
		t, err := s.getTurn(ctx, contextID, beforeTurnID)
		if err != nil {
			return nil, err
		}
		end = t.ParentTurnID
	}
	if end == RootSentinel || end == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at) AS (
			SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at
			FROM turns WHERE context_id = ? AND turn_id = ?
			UNION ALL
			SELECT t.turn_id, t.parent_turn_id, t.depth, t.type_id, t.type_version, t.payload, t.idempotency_key, t.content_hash, t.fs_root_hash, t.created_at
			FROM turns t JOIN chain ON t.turn_id = chain.parent_turn_id WHERE t.context_id = ?
		)
		SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at FROM chain
	`, contextID, end, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reversed []StoredTurn
	for rows.Next() {
		var t StoredTurn
		t.ContextID = contextID
		if err := rows.Scan(&t.TurnID, &t.ParentTurnID, &t.Depth, &t.TypeID, &t.TypeVersion, &t.Payload,
			&t.IdempotencyKey, &t.ContentHash, &t.FSRootHash, &t.CreatedAt); err != nil {
			return nil, err
		}
		reversed = append(reversed, t)
	}
	out := make([]StoredTurn, len(reversed))
	for i, t := range reversed {
		out[len(reversed)-1-i] = t
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *SQLiteStore) PutBlob(ctx context.Context, data []byte) (string, error) {
	hash := ContentHash(data)
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO blobs (hash, data) VALUES (?,?)`, hash, data)
	return hash, err
}

func (s *SQLiteStore) GetBlob(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE hash = ?`, hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{What: "blob " + hash}
	}
	return data, err
}

func (s *SQLiteStore) AttachFS(ctx context.Context, turnID string, fsRootHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE turns SET fs_root_hash = ? WHERE turn_id = ?`, fsRootHash, turnID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ErrNotFound{What: "turn " + turnID}
	}
	return nil
}

func (s *SQLiteStore) PublishRegistryBundle(ctx context.Context, bundle RegistryBundle) error {
	payload, err := EncodeJSON(bundle)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO registry_bundles (bundle_id, payload) VALUES (?,?)`, bundle.BundleID, payload)
	return err
}

func (s *SQLiteStore) GetRegistryBundle(ctx context.Context, bundleID string) (RegistryBundle, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM registry_bundles WHERE bundle_id = ?`, bundleID).Scan(&payload)
	if err == sql.ErrNoRows {
		return RegistryBundle{}, &ErrNotFound{What: "registry bundle " + bundleID}
	}
	if err != nil {
		return RegistryBundle{}, err
	}
	var bundle RegistryBundle
	if err := DecodeJSON(payload, &bundle); err != nil {
		return RegistryBundle{}, err
	}
	return bundle, nil
}

var _ Store = (*SQLiteStore)(nil)
