package cache_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/pkg/converter/cache"
)

func newManager(t *testing.T, version, format string) (cache.CacheManager, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return cache.NewFileCacheManager(h, version, format), buf
}

func TestCache_RoundTrip(t *testing.T) {
	for _, format := range []string{cache.CacheFormatGob, cache.CacheFormatJSON} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), cache.CacheFileName)
			mod := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			doc := []byte(`{"title":"Intro","blocks":[]}`)

			m, _ := newManager(t, "v1.2.0", format)
			require.NoError(t, m.Load(path))
			require.NoError(t, m.Update("en/01/index.md", mod, "h1", "pandoc 3.1", doc))
			require.NoError(t, m.Persist(path))

			reloaded, _ := newManager(t, "v1.2.0", format)
			require.NoError(t, reloaded.Load(path))
			got, hit := reloaded.Check("en/01/index.md", mod, "h1", "pandoc 3.1")
			require.True(t, hit)
			assert.Equal(t, doc, got)
		})
	}
}

func TestCache_CheckMisses(t *testing.T) {
	mod := time.Unix(100, 0).UTC()
	m, _ := newManager(t, "v1", "")
	require.NoError(t, m.Update("a.md", mod, "h", "p", []byte("{}")))

	tests := []struct {
		name   string
		path   string
		mod    time.Time
		hash   string
		parser string
		hit    bool
	}{
		{"match", "a.md", mod, "h", "p", true},
		{"unknown path", "b.md", mod, "h", "p", false},
		{"mod time changed", "a.md", mod.Add(time.Second), "h", "p", false},
		{"content changed", "a.md", mod, "h2", "p", false},
		{"parser changed", "a.md", mod, "h", "p2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, hit := m.Check(tt.path, tt.mod, tt.hash, tt.parser)
			assert.Equal(t, tt.hit, hit)
		})
	}
}

func TestCache_VersionMismatchLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.CacheFileName)
	mod := time.Unix(1, 0).UTC()
	old, _ := newManager(t, "v1", "")
	require.NoError(t, old.Update("a.md", mod, "h", "p", []byte("{}")))
	require.NoError(t, old.Persist(path))

	m, logs := newManager(t, "v2", "")
	require.NoError(t, m.Load(path))
	_, hit := m.Check("a.md", mod, "h", "p")
	assert.False(t, hit)
	assert.Contains(t, logs.String(), "another version")

	dev, _ := newManager(t, "dev", "")
	require.NoError(t, dev.Load(path))
	_, hit = dev.Check("a.md", mod, "h", "p")
	assert.True(t, hit, "dev builds accept any cache")
}

func TestCache_CorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.CacheFileName)
	require.NoError(t, os.WriteFile(path, []byte("not a cache"), 0o644))

	m, logs := newManager(t, "v1", "")
	require.NoError(t, m.Load(path))
	assert.Contains(t, logs.String(), "unreadable")
}

func TestCache_PersistEmptyRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.CacheFileName)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	m, _ := newManager(t, "v1", "")
	require.NoError(t, m.Persist(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCache_LoadIOErrorIsReported(t *testing.T) {
	dir := t.TempDir()
	m, _ := newManager(t, "v1", "")
	// ENOTDIR, not ErrNotExist.
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	err := m.Load(filepath.Join(file, "cache"))
	require.ErrorIs(t, err, cache.ErrCacheLoad)
}

func TestCache_ConcurrentUpdates(t *testing.T) {
	m, _ := newManager(t, "v1", "")
	mod := time.Unix(5, 0)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("f%d.md", i)
			assert.NoError(t, m.Update(p, mod, "h", "p", []byte("{}")))
			_, _ = m.Check(p, mod, "h", "p")
		}(i)
	}
	wg.Wait()
	for i := 0; i < 32; i++ {
		_, hit := m.Check(fmt.Sprintf("f%d.md", i), mod, "h", "p")
		assert.True(t, hit)
	}
}
