package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "50005/doc.txt", strings.NewReader("meeting minutes"), "text/plain"))

	rc, err := store.Open(ctx, "50005/doc.txt")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "meeting minutes", string(body))

	require.NoError(t, store.Delete(ctx, "50005/doc.txt"))
	_, err = store.Open(ctx, "50005/doc.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	err = store.Put(context.Background(), "../escape.txt", strings.NewReader("x"), "text/plain")
	require.ErrorIs(t, err, ErrInvalidKey)
}
