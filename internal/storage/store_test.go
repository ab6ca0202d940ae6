package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	n, err := s.Save(ctx, "ANA-2024-001.pdf", strings.NewReader("%PDF-1.4"), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	rc, err := s.Open(ctx, "ANA-2024-001.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4", string(body))

	require.NoError(t, s.Delete(ctx, "ANA-2024-001.pdf"))
	require.NoError(t, s.Delete(ctx, "ANA-2024-001.pdf"))
	_, err = s.Open(ctx, "ANA-2024-001.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreRejects(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(ctx, "big.pdf", strings.NewReader(strings.Repeat("x", 11)), 10)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, err = s.Open(ctx, "big.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Save(ctx, "../escape.pdf", strings.NewReader("x"), 10)
	assert.Error(t, err)
}
