package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgehq/forge/internal/obs"
)

// PostgresStore is the third parity backend, a native pgx pool over
// the same store contract.
type PostgresStore struct {
	pool           *pgxpool.Pool
	idempotencyTTL time.Duration

	// Metrics records per-operation query latency/status against the
	// shared Prometheus collectors. Nil disables metrics recording.
	Metrics *obs.Metrics
}

// OpenPostgresStore connects to dsn and ensures the lineage schema
// exists.
func OpenPostgresStore(ctx context.Context, dsn string, ttl time.Duration) (*PostgresStore, error) {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres lineage store: %w", err)
	}
	s := &PostgresStore{pool: pool, idempotencyTTL: ttl}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// recordQuery observes a database operation's latency and outcome
// against s.Metrics, a no-op when Metrics is nil.
func (s *PostgresStore) recordQuery(operation, table string, start time.Time, err error) {
	if s.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.Metrics.RecordDatabaseQuery(operation, table, status, time.Since(start).Seconds())
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS lineage_contexts (
	context_id TEXT PRIMARY KEY,
	head_turn_id TEXT NOT NULL,
	head_depth INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lineage_turns (
	context_id TEXT NOT NULL,
	turn_id TEXT NOT NULL,
	parent_turn_id TEXT NOT NULL,
	depth INTEGER NOT NULL,
	type_id TEXT NOT NULL,
	type_version INTEGER NOT NULL,
	payload BYTEA NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	fs_root_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (context_id, turn_id)
);
CREATE INDEX IF NOT EXISTS idx_lineage_turns_parent ON lineage_turns(context_id, parent_turn_id);
CREATE TABLE IF NOT EXISTS lineage_blobs (
	hash TEXT PRIMARY KEY,
	data BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS lineage_registry_bundles (
	bundle_id TEXT PRIMARY KEY,
	payload BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS lineage_idempotency (
	context_id TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	turn_id TEXT NOT NULL,
	expire_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (context_id, idempotency_key)
);`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) CreateContext(ctx context.Context, baseTurnID string) (Context, error) {
	start := time.Now()
	c, err := s.createContext(ctx, baseTurnID)
	s.recordQuery("create_context", "lineage_contexts", start, err)
	return c, err
}

func (s *PostgresStore) createContext(ctx context.Context, baseTurnID string) (Context, error) {
	contextID := uuid.NewString()
	c := Context{ContextID: contextID, HeadTurnID: RootSentinel, HeadDepth: 0}

	if baseTurnID == "" || baseTurnID == RootSentinel {
		_, err := s.pool.Exec(ctx, `INSERT INTO lineage_contexts (context_id, head_turn_id, head_depth) VALUES ($1,$2,$3)`,
			contextID, RootSentinel, 0)
		return c, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Context{}, err
	}
	defer tx.Rollback(ctx)

	var baseDepth int
	if err := tx.QueryRow(ctx, `SELECT depth FROM lineage_turns WHERE turn_id = $1`, baseTurnID).Scan(&baseDepth); err != nil {
		if err == pgx.ErrNoRows {
			return Context{}, &ErrNotFound{What: "turn " + baseTurnID}
		}
		return Context{}, err
	}

	rows, err := tx.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT * FROM lineage_turns WHERE turn_id = $1
			UNION ALL
			SELECT t.* FROM lineage_turns t JOIN chain c ON t.turn_id = c.parent_turn_id
		)
		SELECT context_id, turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at
		FROM chain`, baseTurnID)
	if err != nil {
		return Context{}, err
	}

	var chain []StoredTurn
	for rows.Next() {
		var t StoredTurn
		if err := rows.Scan(&t.ContextID, &t.TurnID, &t.ParentTurnID, &t.Depth, &t.TypeID, &t.TypeVersion, &t.Payload,
			&t.IdempotencyKey, &t.ContentHash, &t.FSRootHash, &t.CreatedAt); err != nil {
			rows.Close()
			return Context{}, err
		}
		chain = append(chain, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Context{}, err
	}

	for _, t := range chain {
		t.ContextID = contextID
		if _, err := tx.Exec(ctx, `INSERT INTO lineage_turns
			(context_id, turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			t.ContextID, t.TurnID, t.ParentTurnID, t.Depth, t.TypeID, t.TypeVersion, t.Payload,
			t.IdempotencyKey, t.ContentHash, t.FSRootHash, t.CreatedAt); err != nil {
			return Context{}, err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO lineage_contexts (context_id, head_turn_id, head_depth) VALUES ($1,$2,$3)`,
		contextID, baseTurnID, baseDepth); err != nil {
		return Context{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Context{}, err
	}
	c.HeadTurnID = baseTurnID
	c.HeadDepth = baseDepth
	return c, nil
}

func (s *PostgresStore) ForkContext(ctx context.Context, fromTurnID string) (Context, error) {
	start := time.Now()
	c, err := s.createContext(ctx, fromTurnID)
	s.recordQuery("fork_context", "lineage_contexts", start, err)
	return c, err
}

func (s *PostgresStore) AppendTurn(ctx context.Context, req AppendRequest) (StoredTurn, error) {
	start := time.Now()
	t, err := s.appendTurn(ctx, req)
	s.recordQuery("append_turn", "lineage_turns", start, err)
	return t, err
}

func (s *PostgresStore) appendTurn(ctx context.Context, req AppendRequest) (StoredTurn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return StoredTurn{}, err
	}
	defer tx.Rollback(ctx)

	var headTurnID string
	if err := tx.QueryRow(ctx, `SELECT head_turn_id FROM lineage_contexts WHERE context_id = $1 FOR UPDATE`, req.ContextID).
		Scan(&headTurnID); err != nil {
		if err == pgx.ErrNoRows {
			return StoredTurn{}, &ErrNotFound{What: "context " + req.ContextID}
		}
		return StoredTurn{}, err
	}

	if req.IdempotencyKey != "" {
		var turnID string
		var expireAt time.Time
		err := tx.QueryRow(ctx, `SELECT turn_id, expire_at FROM lineage_idempotency WHERE context_id = $1 AND idempotency_key = $2`,
			req.ContextID, req.IdempotencyKey).Scan(&turnID, &expireAt)
		if err == nil && time.Now().Before(expireAt) {
			var t StoredTurn
			t.ContextID = req.ContextID
			if err := tx.QueryRow(ctx, `SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at
				FROM lineage_turns WHERE context_id = $1 AND turn_id = $2`, req.ContextID, turnID).
				Scan(&t.TurnID, &t.ParentTurnID, &t.Depth, &t.TypeID, &t.TypeVersion, &t.Payload, &t.IdempotencyKey, &t.ContentHash, &t.FSRootHash, &t.CreatedAt); err != nil {
				return StoredTurn{}, err
			}
			return t, tx.Commit(ctx)
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
		if err := tx.QueryRow(ctx, `SELECT depth FROM lineage_turns WHERE context_id = $1 AND turn_id = $2`, req.ContextID, parent).
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

	if _, err := tx.Exec(ctx, `INSERT INTO lineage_turns
		(context_id, turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		turn.ContextID, turn.TurnID, turn.ParentTurnID, turn.Depth, turn.TypeID, turn.TypeVersion, turn.Payload,
		turn.IdempotencyKey, turn.ContentHash, turn.FSRootHash, turn.CreatedAt); err != nil {
		return StoredTurn{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE lineage_contexts SET head_turn_id = $1, head_depth = $2 WHERE context_id = $3`,
		turn.TurnID, turn.Depth, req.ContextID); err != nil {
		return StoredTurn{}, err
	}
	if req.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, `INSERT INTO lineage_idempotency (context_id, idempotency_key, turn_id, expire_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (context_id, idempotency_key) DO UPDATE SET turn_id = $3, expire_at = $4`,
			req.ContextID, req.IdempotencyKey, turn.TurnID, time.Now().Add(s.idempotencyTTL)); err != nil {
			return StoredTurn{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return StoredTurn{}, err
	}
	return turn, nil
}

func (s *PostgresStore) GetHead(ctx context.Context, contextID string) (Context, error) {
	start := time.Now()
	c, err := s.getHead(ctx, contextID)
	s.recordQuery("get_head", "lineage_contexts", start, err)
	return c, err
}

func (s *PostgresStore) getHead(ctx context.Context, contextID string) (Context, error) {
	var c Context
	c.ContextID = contextID
	err := s.pool.QueryRow(ctx, `SELECT head_turn_id, head_depth FROM lineage_contexts WHERE context_id = $1`, contextID).
		Scan(&c.HeadTurnID, &c.HeadDepth)
	if err == pgx.ErrNoRows {
		return Context{}, &ErrNotFound{What: "context " + contextID}
	}
	return c, err
}

func (s *PostgresStore) ListTurns(ctx context.Context, contextID string, beforeTurnID string, limit int) ([]StoredTurn, error) {
	start := time.Now()
	out, err := s.listTurns(ctx, contextID, beforeTurnID, limit)
	s.recordQuery("list_turns", "lineage_turns", start, err)
	return out, err
}

func (s *PostgresStore) listTurns(ctx context.Context, contextID string, beforeTurnID string, limit int) ([]StoredTurn, error) {
	head, err := s.getHead(ctx, contextID)
	if err != nil {
		return nil, err
	}
	end := beforeTurnID
	if end == "" {
		end = head.HeadTurnID
	} else {
		var parent string
		if err := s.pool.QueryRow(ctx, `SELECT parent_turn_id FROM lineage_turns WHERE context_id = $1 AND turn_id = $2`, contextID, beforeTurnID).
			Scan(&parent); err != nil {
			if err == pgx.ErrNoRows {
				return nil, &ErrNotFound{What: "turn " + beforeTurnID}
			}
			return nil, err
		}
		end = parent
	}
	if end == RootSentinel || end == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT * FROM lineage_turns WHERE context_id = $1 AND turn_id = $2
			UNION ALL
			SELECT t.* FROM lineage_turns t JOIN chain c ON t.turn_id = c.parent_turn_id AND t.context_id = $1
		)
		SELECT turn_id, parent_turn_id, depth, type_id, type_version, payload, idempotency_key, content_hash, fs_root_hash, created_at
		FROM chain`, contextID, end)
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
	if err := rows.Err(); err != nil {
		return nil, err
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

func (s *PostgresStore) PutBlob(ctx context.Context, data []byte) (string, error) {
	start := time.Now()
	hash := ContentHash(data)
	_, err := s.pool.Exec(ctx, `INSERT INTO lineage_blobs (hash, data) VALUES ($1,$2) ON CONFLICT (hash) DO NOTHING`, hash, data)
	s.recordQuery("put_blob", "lineage_blobs", start, err)
	return hash, err
}

func (s *PostgresStore) GetBlob(ctx context.Context, hash string) ([]byte, error) {
	start := time.Now()
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM lineage_blobs WHERE hash = $1`, hash).Scan(&data)
	if err == pgx.ErrNoRows {
		err = &ErrNotFound{What: "blob " + hash}
	}
	s.recordQuery("get_blob", "lineage_blobs", start, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *PostgresStore) AttachFS(ctx context.Context, turnID string, fsRootHash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE lineage_turns SET fs_root_hash = $1 WHERE turn_id = $2`, fsRootHash, turnID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{What: "turn " + turnID}
	}
	return nil
}

func (s *PostgresStore) PublishRegistryBundle(ctx context.Context, bundle RegistryBundle) error {
	payload, err := EncodeJSON(bundle)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO lineage_registry_bundles (bundle_id, payload) VALUES ($1,$2)
		ON CONFLICT (bundle_id) DO UPDATE SET payload = $2`, bundle.BundleID, payload)
	return err
}

func (s *PostgresStore) GetRegistryBundle(ctx context.Context, bundleID string) (RegistryBundle, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM lineage_registry_bundles WHERE bundle_id = $1`, bundleID).Scan(&payload)
	if err == pgx.ErrNoRows {
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

var _ Store = (*PostgresStore)(nil)
