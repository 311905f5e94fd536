package assist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twende/internal/testdb"
)

func TestStoreUse(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedUsers(t, db, "c1")
	store := NewStore(db)
	ctx := context.Background()

	remaining, err := store.Use(ctx, "c1", "2026-03", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = store.Use(ctx, "c1", "2026-03", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = store.Use(ctx, "c1", "2026-03", 2)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	remaining, err = store.Use(ctx, "c1", "2026-04", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	// An older period never refills a newer allowance.
	remaining, err = store.Use(ctx, "c1", "2026-03", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestStoreUseConcurrent(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedUsers(t, db, "c1")
	store := NewStore(db)
	ctx := context.Background()

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := store.Use(ctx, "c1", "2026-03", 3)
			errs <- err
		}()
	}

	var ok, denied int
	for i := 0; i < callers; i++ {
		switch err := <-errs; {
		case err == nil:
			ok++
		case err == ErrQuotaExceeded:
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, callers-3, denied)
}
