package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portjar/internal/config"
	"github.com/mmr-tortoise/portjar/internal/logger"
)

func TestFileStore_LoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jar")

	s, err := OpenFile(context.Background(), path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	text, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Equal(t, path, s.Path())
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jar")

	s, err := OpenFile(ctx, path, true)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "web 8080\napi/tcp 9090\n"))
	require.NoError(t, s.Save(ctx, "web 8080\n"))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "web 8080\n", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"jar", "jar.lock"}, names)

	s, err = OpenFile(ctx, path, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	text, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web 8080\n", text)
}

func TestFileStore_ExclusiveLockBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jar")

	first, err := OpenFile(context.Background(), path, true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = OpenFile(ctx, path, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))

	require.NoError(t, first.Close())

	second, err := OpenFile(context.Background(), path, true)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestFileStore_SharedLocksCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jar")

	a, err := OpenFile(context.Background(), path, false)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := OpenFile(ctx, path, false)
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}

func TestFileStore_CloseTwice(t *testing.T) {
	s, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "jar"), true)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestOpenFile_EmptyPath(t *testing.T) {
	_, err := OpenFile(context.Background(), "", true)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.JarFile = filepath.Join(t.TempDir(), "jar")

	s, err := Open(context.Background(), cfg, true, logger.NewNop())
	require.NoError(t, err)
	_, ok := s.(*FileStore)
	assert.True(t, ok)
	assert.NoError(t, s.Close())

	cfg.Store = "s3"
	_, err = Open(context.Background(), cfg, true, logger.NewNop())
	assert.Error(t, err)
}
