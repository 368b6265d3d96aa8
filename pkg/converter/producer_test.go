package converter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	jobs []Job
	// release, when set, frees each job's ticket as if a consumer ran it.
	release *sequencer
}

func (s *recordingSink) Put(_ context.Context, job Job) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	if s.release != nil {
		s.release.Done(job.Seq)
	}
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, j := range s.jobs {
		out = append(out, j.Language+"/"+j.ID)
	}
	return out
}

type recordingLifecycle struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingLifecycle) add(c string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
	return nil
}

func (l *recordingLifecycle) Start(context.Context, string, string) error { return l.add("start") }
func (l *recordingLifecycle) PreConversion(_ context.Context, lang string) error {
	return l.add("pre:" + lang)
}
func (l *recordingLifecycle) PostConversion(_ context.Context, lang string) error {
	return l.add("post:" + lang)
}

func exampleTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"de/01/index.md":     "# Eins",
		"de/02/021/index.md": "# Zwei eins",
		"en/01/index.md":     "# One",
		"en/02/021/index.md": "# Two one",
	})
	return src
}

func newTestProducer(t *testing.T, cfg ProducerConfig, sink JobSink, seq *sequencer, results chan<- Result) (*Producer, *recordingLifecycle) {
	t.Helper()
	lc := &recordingLifecycle{}
	p, err := NewProducer(cfg, sink, lc, seq, nil, results, discardHandler())
	require.NoError(t, err)
	return p, lc
}

func TestProducer_ExampleTree(t *testing.T) {
	src := exampleTree(t)
	dest := t.TempDir()
	seq := newSequencer(true)
	sink := &recordingSink{release: seq}
	p, lc := newTestProducer(t, ProducerConfig{SourceRoot: src, DestRoot: dest}, sink, seq, nil)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"de", "en"}, p.Languages())
	assert.Equal(t, []string{"de/01", "de/02/021", "en/01", "en/02/021"}, sink.ids())
	assert.Equal(t, []string{"start", "pre:de", "post:de", "pre:en", "post:en"}, lc.calls)

	// Tickets per language: pre_conversion, 01, container 02, 02/021,
	// post_conversion.
	var seqs []int
	for _, j := range sink.jobs {
		seqs = append(seqs, j.Seq)
	}
	assert.Equal(t, []int{1, 3, 6, 8}, seqs)

	containers := p.Containers("en")
	require.Len(t, containers, 1)
	assert.Equal(t, "02", containers[0].Job.ID)
	assert.Equal(t, 7, containers[0].Job.Seq)

	j := sink.jobs[1]
	assert.Equal(t, JobSection, j.Kind)
	assert.Equal(t, "de/02/021/index.md", j.RelPath)
	assert.Equal(t, filepath.Join(src, "de", "02", "021", "index.md"), j.SourcePath)
	assert.Equal(t, filepath.Join(dest, "de", "02", "021", ContentFileName), j.DestPath)
}

func TestProducer_ParityOutputPaths(t *testing.T) {
	src := exampleTree(t)
	dest := t.TempDir()
	sink := &recordingSink{}
	p, _ := newTestProducer(t, ProducerConfig{SourceRoot: src, DestRoot: dest}, sink, newSequencer(false), nil)
	require.NoError(t, p.Run(context.Background()))

	rel := map[string][]string{}
	for _, j := range sink.jobs {
		r, err := filepath.Rel(filepath.Join(dest, j.Language), j.DestPath)
		require.NoError(t, err)
		rel[j.Language] = append(rel[j.Language], filepath.ToSlash(r))
	}
	assert.Equal(t, rel["de"], rel["en"])
	assert.Len(t, rel["en"], 2)
}

func TestProducer_StructuralErrors(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		languages []string
		wantPath  string
	}{
		{
			name: "missing nested section",
			files: map[string]string{
				"de/01/index.md": "", "de/02/index.md": "", "de/02/021/index.md": "",
				"en/01/index.md": "", "en/02/index.md": "", "en/02/021/notes.txt": "",
			},
			wantPath: "en/02/021",
		},
		{
			name: "different section names",
			files: map[string]string{
				"de/x/index.md": "", "de/y/index.md": "",
				"en/x/index.md": "", "en/z/index.md": "",
			},
			wantPath: "en/z",
		},
		{
			name: "extra section",
			files: map[string]string{
				"de/01/index.md": "",
				"en/01/index.md": "", "en/02/index.md": "",
			},
			wantPath: "en/02",
		},
		{
			name:     "two content files",
			files:    map[string]string{"en/01/index.md": "", "en/01/other.md": ""},
			wantPath: "en/01",
		},
		{
			name: "nested section removed below a container",
			files: map[string]string{
				"de/01/index.md": "", "de/02/021/index.md": "",
				"en/01/index.md": "", "en/02/021/notes.txt": "",
			},
			wantPath: "en/02/021",
		},
		{
			name: "container in one language, section in another",
			files: map[string]string{
				"de/02/index.md": "", "de/02/021/index.md": "",
				"en/02/021/index.md": "",
			},
			wantPath: "en/02",
		},
		{
			name:      "declared language missing",
			files:     map[string]string{"en/01/index.md": ""},
			languages: []string{"en", "fr"},
			wantPath:  "fr",
		},
		{
			name:     "no languages",
			files:    map[string]string{"_assets/logo.md": "", "README.md": ""},
			wantPath: ".",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := t.TempDir()
			writeTree(t, src, tt.files)
			sink := &recordingSink{}
			p, lc := newTestProducer(t, ProducerConfig{SourceRoot: src, DestRoot: t.TempDir(), Languages: tt.languages}, sink, newSequencer(false), nil)

			err := p.Run(context.Background())
			require.ErrorIs(t, err, ErrStructuralInconsistency)
			var se *StructuralInconsistencyError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantPath, se.Path)
			assert.Empty(t, sink.jobs, "no job may be queued for an inconsistent tree")
			assert.Empty(t, lc.calls, "no hook may run for an inconsistent tree")
		})
	}
}

func TestProducer_SkipsReservedIgnoredAndLinks(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"en/01/index.md":        "",
		"en/01/_media/fig.md":   "",
		"en/.git/HEAD.md":       "",
		"en/drafts/index.md":    "",
		"en/01/notes.txt":       "",
		"_shared/index.md":      "",
		IgnoreFileName:          "# comment\ndrafts/\n",
		"outside/target/one.md": "",
	})
	require.NoError(t, os.Symlink(filepath.Join(src, "outside", "target"), filepath.Join(src, "en", "linked")))

	sink := &recordingSink{}
	p, _ := newTestProducer(t, ProducerConfig{SourceRoot: src, DestRoot: t.TempDir(), Languages: []string{"en"}}, sink, newSequencer(false), nil)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"en/01"}, sink.ids())
}

func TestProducer_PagesAndFragments(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"de/01/index.md": "",
		"de/about.md":    "",
		"en/01/index.md": "",
		"en/about.md":    "",
		"en/footer.md":   "",
	})
	dest := t.TempDir()
	results := make(chan Result, 4)
	sink := &recordingSink{}
	p, _ := newTestProducer(t, ProducerConfig{
		SourceRoot: src, DestRoot: dest,
		Pages: []string{"about"}, Fragments: []string{"footer"},
	}, sink, newSequencer(false), results)
	require.NoError(t, p.Run(context.Background()))
	close(results)

	assert.Equal(t, []string{"de/01", "de/about", "en/01", "en/about", "en/footer"}, sink.ids())
	assert.Equal(t, JobFragment, sink.jobs[4].Kind)
	assert.Equal(t, filepath.Join(dest, "en", "footer.json"), sink.jobs[4].DestPath)

	var skipped []Result
	for r := range results {
		skipped = append(skipped, r)
	}
	require.Len(t, skipped, 1)
	assert.Equal(t, StatusSkipped, skipped[0].Status)
	assert.Equal(t, "de/footer", skipped[0].Job.RelPath)
	assert.Equal(t, SkipReasonMissingFragment, skipped[0].SkipReason)
}

// instrumentedSink wraps a JobQueue and counts Put calls entered and
// returned.
type instrumentedSink struct {
	q        *JobQueue
	mu       sync.Mutex
	entered  int
	returned int
}

func (s *instrumentedSink) Put(ctx context.Context, job Job) error {
	s.mu.Lock()
	s.entered++
	s.mu.Unlock()
	err := s.q.Put(ctx, job)
	s.mu.Lock()
	s.returned++
	s.mu.Unlock()
	return err
}

func (s *instrumentedSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entered, s.returned
}

func TestProducer_BlocksWhenQueueFull(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"en/01/index.md": "", "en/02/index.md": "", "en/03/index.md": "", "en/04/index.md": "",
	})
	const capacity = 2
	sink := &instrumentedSink{q: NewJobQueue(capacity)}
	p, _ := newTestProducer(t, ProducerConfig{SourceRoot: src, DestRoot: t.TempDir()}, sink, newSequencer(false), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		entered, _ := sink.counts()
		return entered == capacity+1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	entered, returned := sink.counts()
	assert.Equal(t, capacity+1, entered, "producer must stop at the blocked Put")
	assert.Equal(t, capacity, returned)
	assert.Equal(t, capacity, sink.q.Len())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer did not return after cancellation")
	}
}
