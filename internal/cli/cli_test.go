package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/internal/testutil"
	"github.com/stackvity/book-converter/pkg/converter"
)

func writeBook(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	testutil.CreateTree(t, src, map[string]string{
		"book.yml":           "title: Book\nauthor: Ann\n",
		"en/01/index.md":     "# One\nHello",
		"en/02/021/index.md": "# Two one\nWorld",
	})
	return src
}

func testOptions(t *testing.T, src string) converter.Options {
	t.Helper()
	return converter.Options{
		InputPath:    src,
		OutputPath:   filepath.Join(t.TempDir(), "out"),
		AppVersion:   "test",
		Logger:       testutil.NewTestLogger(t).Handler(),
		Parser:       &testutil.StubParser{},
		GitClient:    new(testutil.MockGitClient),
		Renderer:     new(testutil.MockRenderer),
		OnErrorMode:  converter.OnErrorFail,
		OrderedHooks: true,
		OutputFormat: converter.OutputFormatText,
		TuiEnabled:   true,
	}
}

func TestRun_TextSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := testOptions(t, writeBook(t))

	report, err := Run(context.Background(), opts, testutil.NewTestLogger(t), "test", IO{Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.ProcessedCount)

	out := stdout.String()
	assert.True(t, strings.HasPrefix(out, "Book conversion: completed\n"), out)
	assert.Contains(t, out, report.Summary.RunID)
	assert.Contains(t, out, "Languages")
	assert.NotContains(t, out, "Fatal", "no error table for a clean run")
	assert.Empty(t, stderr.String(), "no progress bar without a terminal")
	assert.FileExists(t, filepath.Join(opts.OutputPath, "en", "01", converter.ContentFileName))
}

func TestRun_JSONSummary(t *testing.T) {
	var stdout bytes.Buffer
	opts := testOptions(t, writeBook(t))
	opts.OutputFormat = converter.OutputFormatJSON
	opts.Parser = &testutil.StubParser{Fail: func(path string) error {
		if strings.Contains(filepath.ToSlash(path), "en/02/") {
			return errors.New("broken source")
		}
		return nil
	}}

	report, err := Run(context.Background(), opts, testutil.NewTestLogger(t), "test", IO{Stdout: &stdout, Stderr: &bytes.Buffer{}})
	require.ErrorIs(t, err, converter.ErrJobsFailed)

	var decoded converter.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, report.Summary.RunID, decoded.Summary.RunID)
	assert.Equal(t, 1, decoded.Summary.ErrorCount)
	require.Len(t, decoded.Errors, 1)
	assert.Contains(t, decoded.Errors[0].Error, "broken source")
}

func TestRun_InvalidOptions(t *testing.T) {
	var stdout bytes.Buffer
	opts := testOptions(t, writeBook(t))
	opts.OutputPath = ""

	_, err := Run(context.Background(), opts, testutil.NewTestLogger(t), "test", IO{Stdout: &stdout, Stderr: &bytes.Buffer{}})
	require.ErrorIs(t, err, converter.ErrConfigValidation)
	assert.Empty(t, stdout.String(), "no summary without a run")
}

func TestRun_VerboseUsesLogHooks(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := testOptions(t, writeBook(t))
	opts.Verbose = true

	_, err := Run(context.Background(), opts, testutil.NewTestLogger(t), "test", IO{Stdout: &stdout, Stderr: &stderr, Terminal: true})
	require.NoError(t, err)
	assert.Empty(t, stderr.String(), "verbose mode logs instead of drawing")
	assert.Contains(t, stdout.String(), "Converted")
}

func TestRenderSummary(t *testing.T) {
	r := converter.Report{
		Summary: converter.ReportSummary{
			RunID:              "run-1",
			InputPath:          "/src",
			OutputPath:         "/out",
			Languages:          []string{"de", "en"},
			ProcessedCount:     3,
			ErrorCount:         25,
			FatalErrorOccurred: true,
			DurationSeconds:    1.5,
			ProfileUsed:        "ci",
		},
	}
	for i := 0; i < 25; i++ {
		r.Errors = append(r.Errors, converter.ErrorInfo{Path: "en/x", Error: "bad", IsFatal: i == 0})
	}

	out := renderSummary(r)
	assert.True(t, strings.HasPrefix(out, "Book conversion: failed\n"), out)
	assert.Contains(t, out, "de, en")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "Extensions")
	assert.Contains(t, out, "ci")
	assert.Contains(t, out, "... 5 more")
	assert.NotContains(t, out, "MORE")
	assert.Equal(t, 20, strings.Count(out, "en/x"))
}

func TestSummaryState(t *testing.T) {
	assert.Equal(t, "completed", summaryState(converter.ReportSummary{}))
	assert.Equal(t, "completed with errors", summaryState(converter.ReportSummary{ErrorCount: 1}))
	assert.Equal(t, "failed", summaryState(converter.ReportSummary{FatalErrorOccurred: true}))
	assert.Equal(t, "cancelled", summaryState(converter.ReportSummary{Cancelled: true, FatalErrorOccurred: true}))
}
