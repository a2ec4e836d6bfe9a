package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/right-to-ask/rta/internal/testutil"
)

func TestAdvanceRunsPendingMigrationsInOrder(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	var ran []uint
	migrations := []Migration{
		{Version: 2, Run: func(ctx context.Context) error { ran = append(ran, 2); return nil }},
		{Version: 1, Run: func(ctx context.Context) error { ran = append(ran, 1); return nil }},
	}

	svc := NewService(NewRepository(db), migrations)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), current)

	require.NoError(t, svc.Advance(ctx, 2))
	assert.Equal(t, []uint{1, 2}, ran)

	current, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), current)
}

func TestAdvanceSkipsAlreadyAppliedMigrations(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	calls := 0
	migrations := []Migration{
		{Version: 1, Run: func(ctx context.Context) error { calls++; return nil }},
	}
	svc := NewService(NewRepository(db), migrations)

	require.NoError(t, svc.Advance(ctx, 1))
	require.NoError(t, svc.Advance(ctx, 1))
	assert.Equal(t, 1, calls)
}
