package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/internal/testutil"
	"github.com/stackvity/book-converter/pkg/converter/parser"
)

// createMockTool writes an executable shell script standing in for an
// external tool.
func createMockTool(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping shell script tool test on Windows")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

const fakePandoc = `
if [ "$1" = "--version" ]; then
  echo "pandoc 3.1.9"
  echo "Features: +server +lua"
  exit 0
fi
input=$(cat)
case "$input" in
  *BROKEN*) echo "pandoc: parse error at line 1" >&2; exit 64 ;;
esac
printf '{"pandoc-api-version":[1,23,1],"meta":{"title":{"t":"MetaInlines","c":[{"t":"Str","c":"Hello"}]},"args":{"t":"MetaString","c":"%s %s %s %s"}},"blocks":[{"t":"Para","c":[{"t":"Str","c":"body"}]}]}' "$1" "$2" "$3" "$4"
`

func TestPandocParser_Parse(t *testing.T) {
	tool := createMockTool(t, "pandoc", fakePandoc)
	src := filepath.Join(t.TempDir(), "index.md")
	testutil.CreateDummyFile(t, src, "# Hello\n\nbody\n")

	p := NewPandocParser(tool, "", testutil.NewTestLogger(t).Handler())
	doc, err := p.Parse(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Title)
	assert.Equal(t, "-f markdown -t json", doc.Meta["args"])
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "pandoc/3.1.9/markdown", p.Identity())
	assert.NoError(t, p.Cleanup(context.Background()))
}

func TestPandocParser_Latin1Source(t *testing.T) {
	tool := createMockTool(t, "pandoc", `cat > "$(dirname "$0")/stdin"
printf '{"pandoc-api-version":[1,23],"meta":{"title":{"t":"MetaString","c":"T"}},"blocks":[]}'
`)
	src := filepath.Join(t.TempDir(), "index.md")
	testutil.CreateDummyFile(t, src, "caf\xe9\n")

	p := NewPandocParser(tool, "commonmark", nil)
	_, err := p.Parse(context.Background(), src)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(filepath.Dir(tool), "stdin"))
	require.NoError(t, err)
	assert.Equal(t, "café\n", string(got))
}

func TestPandocParser_Failures(t *testing.T) {
	tool := createMockTool(t, "pandoc", fakePandoc)
	dir := t.TempDir()
	p := NewPandocParser(tool, "", nil)

	t.Run("tool exits non-zero", func(t *testing.T) {
		src := filepath.Join(dir, "broken.md")
		testutil.CreateDummyFile(t, src, "BROKEN")
		_, err := p.Parse(context.Background(), src)
		require.ErrorIs(t, err, parser.ErrConversion)
		require.ErrorIs(t, err, ErrToolFailed)
		assert.Contains(t, err.Error(), "exit code 64")
		assert.Contains(t, err.Error(), "parse error at line 1")
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := p.Parse(context.Background(), filepath.Join(dir, "nope.md"))
		assert.ErrorIs(t, err, parser.ErrConversion)
	})

	t.Run("binary source", func(t *testing.T) {
		src := filepath.Join(dir, "image.md")
		testutil.CreateDummyFile(t, src, strings.Repeat("\x00\x01", 100))
		_, err := p.Parse(context.Background(), src)
		assert.ErrorIs(t, err, parser.ErrConversion)
	})

	t.Run("tool not found", func(t *testing.T) {
		src := filepath.Join(dir, "ok.md")
		testutil.CreateDummyFile(t, src, "ok")
		missing := NewPandocParser(filepath.Join(dir, "no-such-pandoc"), "", nil)
		_, err := missing.Parse(context.Background(), src)
		require.ErrorIs(t, err, ErrToolFailed)
		assert.Equal(t, "pandoc/unknown/markdown", missing.Identity())
	})
}

func TestPandocParser_Cancelled(t *testing.T) {
	tool := createMockTool(t, "pandoc", "exec sleep 10\n")
	src := filepath.Join(t.TempDir(), "index.md")
	testutil.CreateDummyFile(t, src, "x")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := NewPandocParser(tool, "", nil).Parse(ctx, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.NotErrorIs(t, err, parser.ErrConversion)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandRenderer(t *testing.T) {
	tool := createMockTool(t, "dot", `[ "$1" = "-Tsvg" ] || exit 2
input=$(cat)
case "$input" in
  *syntax*) echo "Error: syntax error in line 1" >&2; exit 1 ;;
  *text*) echo "not an image" ;;
  *) echo "<svg><!-- $input --></svg>" ;;
esac
`)
	r := NewCommandRenderer(tool, testutil.NewTestLogger(t).Handler())
	ctx := context.Background()

	svg, err := r.Render(ctx, "dot", []byte("digraph{a->b}"))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg>")
	assert.Contains(t, string(svg), "digraph{a->b}")

	_, err = r.Render(ctx, "graphviz", []byte("syntax"))
	require.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "syntax error")

	_, err = r.Render(ctx, "dot", []byte("text"))
	assert.ErrorIs(t, err, ErrToolFailed)

	_, err = r.Render(ctx, "mermaid", []byte("graph TD"))
	assert.ErrorContains(t, err, "unsupported diagram format")
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 4}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcd", b.buf.String())
	assert.True(t, b.truncated)
}
