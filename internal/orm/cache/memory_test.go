package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Set(ctx, "gone", []byte("v"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	_, err = c.Get(ctx, "gone")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
}

func TestErrCacheMiss(t *testing.T) {
	err := ErrCacheMiss{Key: "x"}
	assert.Equal(t, "cache miss: x", err.Error())
	assert.True(t, IsCacheMiss(err))
	assert.False(t, IsCacheMiss(context.Canceled))
}
