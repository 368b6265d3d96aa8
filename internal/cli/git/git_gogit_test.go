package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/internal/testutil"
)

type testRepo struct {
	t    *testing.T
	root string
	wt   *git.Worktree
	when time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{t: t, root: root, wt: wt, when: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// commit writes files (relative path to content) and commits them.
func (r *testRepo) commit(msg string, files map[string]string) string {
	r.t.Helper()
	for rel, content := range files {
		testutil.CreateDummyFile(r.t, filepath.Join(r.root, rel), content)
		_, err := r.wt.Add(rel)
		require.NoError(r.t, err)
	}
	r.when = r.when.Add(time.Hour)
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: r.when},
	})
	require.NoError(r.t, err)
	return hash.String()
}

func TestGoGitClient_LastCommit(t *testing.T) {
	r := newTestRepo(t)
	first := r.commit("Add chapters\n\nBody text.", map[string]string{
		"en/01/index.md": "# One",
		"en/02/index.md": "# Two",
	})
	second := r.commit("Edit chapter two", map[string]string{"en/02/index.md": "# Two, revised"})
	testutil.CreateDummyFile(t, filepath.Join(r.root, "en/03/index.md"), "# Untracked")

	c := NewGoGitClient(testutil.NewTestLogger(t).Handler())
	ctx := context.Background()

	got, err := c.LastCommit(ctx, filepath.Join(r.root, "en/01/index.md"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first, got.Hash)
	assert.Equal(t, "Add chapters", got.Subject)
	assert.Equal(t, "Test User", got.Author)
	assert.Equal(t, "test@example.com", got.AuthorEmail)
	assert.True(t, got.Date.Equal(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)), "date %v", got.Date)

	got, err = c.LastCommit(ctx, filepath.Join(r.root, "en/02/index.md"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second, got.Hash)

	got, err = c.LastCommit(ctx, filepath.Join(r.root, "en/03/index.md"))
	require.NoError(t, err)
	assert.Nil(t, got, "untracked file has no commit")
}

func TestGoGitClient_Head(t *testing.T) {
	r := newTestRepo(t)
	c := NewGoGitClient(nil)
	ctx := context.Background()

	got, err := c.Head(ctx, r.root)
	require.NoError(t, err)
	assert.Nil(t, got, "repository without commits")

	r.commit("Initial", map[string]string{"README.md": "hi"})
	head := r.commit("Second", map[string]string{"README.md": "hello"})

	got, err = NewGoGitClient(nil).Head(ctx, r.root)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, head, got.Hash)
	assert.Equal(t, "Second", got.Subject)
}

func TestGoGitClient_OutsideRepository(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := NewGoGitClient(nil)
	got, err := c.LastCommit(context.Background(), path)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Head(context.Background(), dir)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGoGitClient_Cancelled(t *testing.T) {
	r := newTestRepo(t)
	r.commit("Initial", map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewGoGitClient(nil)
	_, err := c.LastCommit(ctx, filepath.Join(r.root, "a.md"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Head(ctx, r.root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGoGitClient_Concurrent(t *testing.T) {
	r := newTestRepo(t)
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d"} {
		files[n+".md"] = n
	}
	hash := r.commit("All", files)

	c := NewGoGitClient(nil)
	done := make(chan *string, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			got, err := c.LastCommit(context.Background(), filepath.Join(r.root, []string{"a", "b", "c", "d"}[i%4]+".md"))
			if err != nil || got == nil {
				done <- nil
				return
			}
			done <- &got.Hash
		}(i)
	}
	for i := 0; i < 8; i++ {
		got := <-done
		require.NotNil(t, got)
		assert.Equal(t, hash, *got)
	}
}
