package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndRelease(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New("local", dir)

	obj, err := s.Put(ctx, "exports/pglite-dump-1.zip", "application/zip", []byte("PK\x03\x04"))
	require.NoError(t, err)

	want := filepath.Join(dir, "exports", "pglite-dump-1.zip")
	require.Equal(t, want, obj.Path())
	require.True(t, strings.HasPrefix(obj.URL(), "file://"), obj.URL())
	require.True(t, strings.HasSuffix(obj.URL(), "/exports/pglite-dump-1.zip"), obj.URL())

	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, []byte("PK\x03\x04"), got)
	_, err = os.Stat(want + ".tmp")
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, obj.Release(ctx))
	_, err = os.Stat(want)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, obj.Release(ctx))
}

func TestPutRejectsEscapingKeys(t *testing.T) {
	s := New("local", t.TempDir())
	for _, key := range []string{"", "../outside.zip", "/abs.zip"} {
		_, err := s.Put(context.Background(), key, "application/zip", nil)
		require.Error(t, err, key)
	}
}
