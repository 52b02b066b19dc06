package lineage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPostgresStoreContract runs the same P11 parity suite against a
// live Postgres instance when FORGE_TEST_POSTGRES_DSN is set; it is
// skipped otherwise since the in-memory and sqlite backends already
// exercise the contract in CI without external services.
func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("FORGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FORGE_TEST_POSTGRES_DSN not set; skipping postgres parity backend")
	}
	store, err := OpenPostgresStore(context.Background(), dsn, time.Hour)
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}
