package extension_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/extension"
)

type recorder struct {
	extension.Base
	name   string
	calls  *[]string
	fail   string
	fields map[string]any
}

func (r *recorder) Name() string {
	return r.name
}

func (r *recorder) record(hook string) error {
	*r.calls = append(*r.calls, r.name+"."+hook)
	if hook == r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) Start(context.Context, string, string) error {
	return r.record("start")
}

func (r *recorder) PreConversion(context.Context, string) error {
	return r.record("pre")
}

func (r *recorder) PostProcessFile(context.Context, *document.Document, extension.File) error {
	return r.record("post_file")
}

func (r *recorder) Finish(context.Context) error {
	return r.record("finish")
}

func (r *recorder) ManifestFields() map[string]any {
	return r.fields
}

func TestSet_DeclaredOrderAndFirstErrorStops(t *testing.T) {
	var calls []string
	a := &recorder{name: "a", calls: &calls}
	b := &recorder{name: "b", calls: &calls, fail: "pre"}
	c := &recorder{name: "c", calls: &calls}
	set := extension.NewSet(nil, a, b, c)
	ctx := context.Background()

	require.NoError(t, set.Start(ctx, "/out", "/src"))
	err := set.PreConversion(ctx, "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, extension.ErrExtensionHook)
	assert.Contains(t, err.Error(), "b.pre_conversion")
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, []string{"a.start", "b.start", "c.start", "a.pre", "b.pre"}, calls)
	assert.Equal(t, []string{"a", "b", "c"}, set.Names())
	assert.Equal(t, 3, set.Len())
}

type slowCounter struct {
	extension.Base
	inside, maxInside int
	mu                sync.Mutex
}

func (s *slowCounter) Name() string { return "slow" }

func (s *slowCounter) PostProcessFile(context.Context, *document.Document, extension.File) error {
	s.mu.Lock()
	s.inside++
	if s.inside > s.maxInside {
		s.maxInside = s.inside
	}
	s.mu.Unlock()
	for i := 0; i < 1000; i++ {
		_ = fmt.Sprint(i)
	}
	s.mu.Lock()
	s.inside--
	s.mu.Unlock()
	return nil
}

func TestSet_SerializesConcurrentCalls(t *testing.T) {
	ext := &slowCounter{}
	set := extension.NewSet(nil, ext)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = set.PostProcessFile(context.Background(), &document.Document{}, extension.File{Seq: i})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, ext.maxInside)
}

func TestSet_ManifestFieldsMerge(t *testing.T) {
	var calls []string
	var logBuf bytes.Buffer
	set := extension.NewSet(slog.NewTextHandler(&logBuf, nil),
		&recorder{name: "a", calls: &calls, fields: map[string]any{"x": 1, "shared": "a"}},
		&recorder{name: "b", calls: &calls, fields: map[string]any{"y": 2, "shared": "b"}},
	)
	assert.Equal(t, map[string]any{"x": 1, "y": 2, "shared": "b"}, set.ManifestFields())
	assert.Contains(t, logBuf.String(), "field=shared")
}

func TestRegistry(t *testing.T) {
	reg := extension.NewRegistry()
	built := 0
	ctor := func(name string) extension.Constructor {
		return func(extension.Env) (extension.Extension, error) {
			built++
			var calls []string
			return &recorder{name: name, calls: &calls}, nil
		}
	}
	reg.MustRegister("numbering", ctor("numbering"))
	reg.MustRegister("textjoin", ctor("textjoin"))
	require.Error(t, reg.Register("textjoin", ctor("textjoin")))
	require.Error(t, reg.Register("", ctor("x")))
	assert.Equal(t, []string{"numbering", "textjoin"}, reg.Names())

	t.Run("unknown fails before construction", func(t *testing.T) {
		built = 0
		_, err := reg.Build([]string{"numbering", "nope"}, extension.Env{})
		require.ErrorIs(t, err, extension.ErrUnknownExtension)
		var unk *extension.UnknownExtensionError
		require.ErrorAs(t, err, &unk)
		assert.Equal(t, "nope", unk.Name)
		assert.Equal(t, []string{"numbering", "textjoin"}, unk.Known)
		assert.Zero(t, built)
	})

	t.Run("builds in order once per name", func(t *testing.T) {
		built = 0
		exts, err := reg.Build([]string{"textjoin", "numbering", "textjoin"}, extension.Env{})
		require.NoError(t, err)
		require.Len(t, exts, 2)
		assert.Equal(t, "textjoin", exts[0].Name())
		assert.Equal(t, "numbering", exts[1].Name())
		assert.Equal(t, 2, built)
	})

	t.Run("constructor error", func(t *testing.T) {
		r := extension.NewRegistry()
		r.MustRegister("bad", func(extension.Env) (extension.Extension, error) { return nil, errors.New("no renderer") })
		_, err := r.Build([]string{"bad"}, extension.Env{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `building extension "bad": no renderer`)
	})
}
