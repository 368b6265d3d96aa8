// Package gitinfo records the last commit of every source file in the
// document metadata, and the repository HEAD in the manifest.
package gitinfo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/git"
)

const Name = "gitinfo"

type gitInfo struct {
	extension.Base
	client git.Client
	logger *slog.Logger
	head   *git.Commit
}

// New is the registry constructor. It needs env.Git.
func New(env extension.Env) (extension.Extension, error) {
	if env.Git == nil {
		return nil, errors.New("no git client configured")
	}
	h := env.Logger
	if h == nil {
		h = slog.Default().Handler()
	}
	return &gitInfo{client: env.Git, logger: slog.New(h).With(slog.String("component", Name))}, nil
}

func (g *gitInfo) Name() string { return Name }

func (g *gitInfo) Start(ctx context.Context, _, sourceRoot string) error {
	head, err := g.client.Head(ctx, sourceRoot)
	if err != nil {
		g.logger.Warn("Cannot read repository HEAD", slog.String("path", sourceRoot), slog.Any("error", err))
		return nil
	}
	g.head = head
	return nil
}

// Lookup failures are logged and leave the document unchanged.
func (g *gitInfo) PostProcessFile(ctx context.Context, doc *document.Document, file extension.File) error {
	c, err := g.client.LastCommit(ctx, file.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn("Cannot read commit history", slog.String("path", file.Path), slog.Any("error", err))
		return nil
	}
	if c == nil {
		return nil
	}
	if doc.Meta == nil {
		doc.Meta = make(map[string]any)
	}
	doc.Meta["lastCommit"] = c
	return nil
}

func (g *gitInfo) ManifestFields() map[string]any {
	if g.head == nil {
		return nil
	}
	return map[string]any{"source": map[string]any{"commit": g.head}}
}
