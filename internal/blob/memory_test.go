package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Get(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("put then get", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(ctx, "a/b", []byte("payload"), "text/plain"))

		data, err := store.Get(ctx, "a/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(ctx, "a", []byte("abc"), "text/plain"))

		data, err := store.Get(ctx, "a")
		require.NoError(t, err)
		data[0] = 'z'

		again, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("list filters by prefix and sorts", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(ctx, "raw/2024/02/x.json", nil, ""))
		require.NoError(t, store.Put(ctx, "raw/2024/01/x.json", nil, ""))
		require.NoError(t, store.Put(ctx, "state/seen.txt", nil, ""))

		keys, err := store.List(ctx, "raw/")
		require.NoError(t, err)
		assert.Equal(t, []string{"raw/2024/01/x.json", "raw/2024/02/x.json"}, keys)
	})
}
