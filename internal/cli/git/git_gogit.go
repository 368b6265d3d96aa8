// Package git implements the converter's commit lookups with go-git.
package git

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	libgit "github.com/stackvity/book-converter/pkg/converter/git"
)

// repoHandle serializes access to one opened repository; go-git
// repositories are not safe for concurrent use.
type repoHandle struct {
	mu   sync.Mutex
	repo *git.Repository
	root string
}

// GoGitClient implements libgit.Client. Repositories are opened once per
// directory and reused.
type GoGitClient struct {
	logger *slog.Logger

	mu    sync.Mutex
	byDir map[string]*repoHandle // nil value: not inside a repository
	roots map[string]*repoHandle
}

var _ libgit.Client = (*GoGitClient)(nil)

// NewGoGitClient creates a new GoGitClient.
func NewGoGitClient(loggerHandler slog.Handler) *GoGitClient {
	if loggerHandler == nil {
		loggerHandler = slog.Default().Handler()
	}
	return &GoGitClient{
		logger: slog.New(loggerHandler).With(slog.String("component", "gitClient"), slog.String("backend", "go-git")),
		byDir:  make(map[string]*repoHandle),
		roots:  make(map[string]*repoHandle),
	}
}

// open returns the repository containing dir, or nil when there is none.
func (c *GoGitClient) open(dir string) (*repoHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.byDir[dir]; ok {
		return h, nil
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			c.logger.Debug("No repository at or above path", slog.String("dir", dir))
			c.byDir[dir] = nil
			return nil, nil
		}
		return nil, libgit.Errorf("failed to open repository at '%s': %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no source files to attribute.
		c.byDir[dir] = nil
		return nil, nil
	}
	root := wt.Filesystem.Root()
	h, ok := c.roots[root]
	if !ok {
		h = &repoHandle{repo: repo, root: root}
		c.roots[root] = h
	}
	c.byDir[dir] = h
	return h, nil
}

// LastCommit implements libgit.Client.
func (c *GoGitClient) LastCommit(ctx context.Context, path string) (*libgit.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, libgit.Errorf("could not resolve '%s': %w", path, err)
	}
	h, err := c.open(filepath.Dir(absPath))
	if err != nil || h == nil {
		return nil, err
	}

	rel, err := filepath.Rel(h.root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, nil
	}
	rel = filepath.ToSlash(rel)

	h.mu.Lock()
	defer h.mu.Unlock()

	iter, err := h.repo.Log(&git.LogOptions{FileName: &rel, Order: git.LogOrderCommitterTime})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, libgit.Errorf("git log for '%s': %w", rel, err)
	}
	defer iter.Close()

	commit, err := iter.Next()
	switch {
	case errors.Is(err, io.EOF):
		return nil, nil
	case err != nil:
		return nil, libgit.Errorf("git log for '%s': %w", rel, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toCommit(commit), nil
}

// Head implements libgit.Client.
func (c *GoGitClient) Head(ctx context.Context, dir string) (*libgit.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, libgit.Errorf("could not resolve '%s': %w", dir, err)
	}
	h, err := c.open(absDir)
	if err != nil || h == nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ref, err := h.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil // no commits yet
		}
		return nil, libgit.Errorf("could not resolve HEAD: %w", err)
	}
	commit, err := h.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, libgit.Errorf("could not read HEAD commit %s: %w", ref.Hash(), err)
	}
	return toCommit(commit), nil
}

func toCommit(c *object.Commit) *libgit.Commit {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return &libgit.Commit{
		Hash:        c.Hash.String(),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Date:        c.Author.When.UTC(),
		Subject:     subject,
	}
}
