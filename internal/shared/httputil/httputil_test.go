package httputil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("503")}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		permanent := errors.New("404")
		err := Retry(context.Background(), 5, time.Millisecond, func() error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 2, time.Millisecond, func() error {
			calls++
			return &RetryableError{Err: errors.New("timeout")}
		})
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 2, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, 3, time.Hour, func() error {
			return &RetryableError{Err: errors.New("down")}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCache_SetGet(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Hour)
	require.NoError(t, err)

	var miss payload
	ok, err := c.Get("serde", &miss)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set("serde", payload{Name: "serde", Count: 3}))

	var hit payload
	ok, err = c.Get("serde", &hit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Name: "serde", Count: 3}, hit)
}

func TestCache_Namespace(t *testing.T) {
	c, err := NewCache(t.TempDir(), 0)
	require.NoError(t, err)

	a := c.Namespace("crates:")
	b := c.Namespace("other:")
	require.NoError(t, a.Set("x", payload{Name: "a"}))

	var got payload
	ok, err := b.Get("x", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Get("x", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", got.Name)
}

func TestCache_Expired(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Set("k", payload{Name: "old"}))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(c.keyPath("k"), old, old))

	var got payload
	ok, err := c.Get("k", &got)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCache_Nil(t *testing.T) {
	var c *Cache
	var got payload
	ok, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Set("k", got))
	assert.Nil(t, c.Namespace("x"))
}

func TestNewCache_EmptyDir(t *testing.T) {
	_, err := NewCache("", time.Hour)
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "dir")
	_, err = NewCache(dir, 0)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
