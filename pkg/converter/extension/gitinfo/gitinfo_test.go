package gitinfo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/internal/testutil"
	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
	"github.com/stackvity/book-converter/pkg/converter/extension/gitinfo"
	"github.com/stackvity/book-converter/pkg/converter/git"
)

func TestGitInfo(t *testing.T) {
	head := &git.Commit{Hash: "abc", Author: "A", Date: time.Unix(10, 0).UTC()}
	last := &git.Commit{Hash: "def", Author: "B", Date: time.Unix(5, 0).UTC()}

	client := &testutil.MockGitClient{}
	client.On("Head", mock.Anything, "/src").Return(head, nil)
	client.On("LastCommit", mock.Anything, "/src/en/01/index.md").Return(last, nil)
	client.On("LastCommit", mock.Anything, "/src/en/02/index.md").Return(nil, nil)
	client.On("LastCommit", mock.Anything, "/src/en/03/index.md").Return(nil, errors.New("corrupt object"))

	ext, err := gitinfo.New(extension.Env{Git: client, Logger: testutil.NewTestLogger(t).Handler()})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, ext.Start(ctx, "/out", "/src"))

	tracked := &document.Document{}
	require.NoError(t, ext.PostProcessFile(ctx, tracked, extension.File{SourcePath: "/src/en/01/index.md"}))
	assert.Equal(t, last, tracked.Meta["lastCommit"])

	untracked := &document.Document{}
	require.NoError(t, ext.PostProcessFile(ctx, untracked, extension.File{SourcePath: "/src/en/02/index.md"}))
	assert.Nil(t, untracked.Meta)

	broken := &document.Document{}
	require.NoError(t, ext.PostProcessFile(ctx, broken, extension.File{SourcePath: "/src/en/03/index.md"}))
	assert.Nil(t, broken.Meta)

	assert.Equal(t, map[string]any{"source": map[string]any{"commit": head}}, ext.ManifestFields())
	client.AssertExpectations(t)
}

func TestGitInfo_NeedsClient(t *testing.T) {
	_, err := gitinfo.New(extension.Env{})
	require.Error(t, err)
}
