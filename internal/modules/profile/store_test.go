package profile

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/errs"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(Driver{ID: "d1", Name: "Aibek", Rating: 4.8, ReviewCount: 12})

	d, err := s.GetDriver(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Aibek", d.Name)

	_, err = s.GetDriver(context.Background(), "missing")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestPGStore_GetDriver(t *testing.T) {
	dsn := os.Getenv("RIDE_TEST_DSN")
	if dsn == "" {
		t.Skip("RIDE_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `INSERT INTO drivers (id, name, phone) VALUES ('pg-d1', 'Dana', '+77000000000')
		ON CONFLICT (id) DO NOTHING`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DELETE FROM drivers WHERE id = 'pg-d1'`) })

	s := NewPGStore(pool)
	d, err := s.GetDriver(ctx, "pg-d1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", d.Name)
	assert.Equal(t, 0, d.ReviewCount)

	_, err = s.GetDriver(ctx, "pg-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
