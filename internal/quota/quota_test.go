package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounter(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter(0)
	for i := 1; i <= CloudLimit; i++ {
		n, err := c.Increment(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	done, err := Exhausted(ctx, c, CloudLimit)
	require.NoError(t, err)
	assert.True(t, done)
	left, _ := Remaining(ctx, NewMemoryCounter(7), CloudLimit)
	assert.Equal(t, 0, left)
}

func TestFileCounterPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCounter(dir)
	require.NoError(t, err)

	used, err := c.Used(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, used)

	_, err = c.Increment(ctx)
	require.NoError(t, err)
	_, err = c.Increment(ctx)
	require.NoError(t, err)

	reopened, err := NewFileCounter(dir)
	require.NoError(t, err)
	used, err = reopened.Used(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	left, err := Remaining(ctx, reopened, CloudLimit)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}
