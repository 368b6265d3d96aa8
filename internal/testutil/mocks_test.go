package testutil_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/internal/testutil"
	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

func TestStubParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.md")
	testutil.CreateDummyFile(t, path, "# Intro\nkind: preface\n\nHello\nWorld\n")

	p := &testutil.StubParser{}
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Intro", doc.Title)
	assert.Equal(t, document.SectionKindPreface, doc.Kind)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "World", document.PlainText(doc.Blocks[1].Inlines))
	assert.Equal(t, 1, p.Calls())

	p.Fail = func(string) error { return errors.New("boom") }
	_, err = p.Parse(context.Background(), path)
	assert.EqualError(t, err, "boom")
}

func TestRecordingExtension(t *testing.T) {
	rec := &testutil.RecordingExtension{}
	exts, err := rec.Registry("rec").Build([]string{"rec"}, extension.Env{})
	require.NoError(t, err)
	require.Len(t, exts, 1)

	ctx := context.Background()
	require.NoError(t, exts[0].PreConversion(ctx, "en"))
	require.NoError(t, exts[0].PostProcessFile(ctx, &document.Document{}, extension.File{Path: "en/01/index.md"}))
	assert.Equal(t, []string{"pre_conversion:en", "post_process_file:en/01/index.md"}, rec.Calls())
	assert.Equal(t, []string{"pre_conversion:en"}, rec.Filter("pre_"))
}

func TestMockRenderer_NilOutput(t *testing.T) {
	r := &testutil.MockRenderer{}
	r.On("Render", mock.Anything, "dot", mock.Anything).Return(nil, errors.New("no dot"))
	out, err := r.Render(context.Background(), "dot", []byte("x"))
	assert.Nil(t, out)
	assert.Error(t, err)
}
