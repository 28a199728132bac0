package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsStableHexDigest(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("https://example.com/article"))
	require.NoError(t, err)
	second, err := h.Hash([]byte("https://example.com/article"))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestHashDiffersPerURL(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("https://example.com/a"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("https://example.com/b"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
