// Package cli wires the converter to the terminal: external tools, the git
// client, progress reporting and the final summary.
package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/stackvity/book-converter/internal/cli/git"
	"github.com/stackvity/book-converter/internal/cli/hooks"
	"github.com/stackvity/book-converter/internal/cli/runner"
	"github.com/stackvity/book-converter/internal/cli/ui"
	"github.com/stackvity/book-converter/pkg/converter"
)

// errQuitByUser cancels the run when the TUI is closed early.
var errQuitByUser = errors.New("interrupted from the terminal UI")

// IO carries the streams of a run. Terminal reports whether Stderr is
// interactive; the TUI and the progress bar need it.
type IO struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Terminal bool
}

// NewIO returns the streams of a run; stderr decides whether the run is
// interactive.
func NewIO(stdout, stderr io.Writer) IO {
	stdio := IO{Stdout: stdout, Stderr: stderr}
	if f, ok := stderr.(*os.File); ok {
		stdio.Terminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return stdio
}

// Run converts the book described by opts and prints the summary. The
// returned error is the converter's, for exit code mapping.
func Run(ctx context.Context, opts converter.Options, logger *slog.Logger, version string, stdio IO) (converter.Report, error) {
	useTUI := opts.TuiEnabled && stdio.Terminal && !opts.Verbose
	if useTUI {
		// The log is held back until the program exits so it does not tear
		// the screen.
		level := slog.LevelInfo
		if logger.Enabled(ctx, slog.LevelDebug) {
			level = slog.LevelDebug
		}
		logs := &lockedBuffer{}
		opts.Logger = slog.NewTextHandler(logs, &slog.HandlerOptions{Level: level})
		defer func() {
			if _, err := logs.WriteTo(stdio.Stderr); err != nil {
				logger.Error("Failed to flush log", slog.Any("error", err))
			}
		}()
	}

	if opts.Parser == nil {
		opts.Parser = runner.NewPandocParser(opts.PandocPath, opts.PandocFrom, opts.Logger)
	}
	if opts.Renderer == nil {
		opts.Renderer = runner.NewCommandRenderer(opts.DotPath, opts.Logger)
	}
	if opts.GitClient == nil {
		opts.GitClient = git.NewGoGitClient(opts.Logger)
	}

	var (
		report converter.Report
		err    error
	)
	switch {
	case useTUI:
		report, err = runWithTUI(ctx, opts, logger, version, stdio)
	case stdio.Terminal && !opts.Verbose && opts.OutputFormat == converter.OutputFormatText:
		bar := hooks.NewProgressBar(stdio.Stderr)
		opts.EventHooks = hooks.NewCLIHooks(logger, false, nil, bar)
		report, err = converter.Convert(ctx, opts)
	default:
		opts.EventHooks = hooks.NewCLIHooks(logger, opts.Verbose, nil, nil)
		report, err = converter.Convert(ctx, opts)
	}

	if report.Summary.RunID == "" {
		// NewEngine rejected the options; there is nothing to summarize.
		return report, err
	}
	if werr := WriteSummary(stdio.Stdout, report, opts.OutputFormat); werr != nil {
		logger.Error("Failed to write summary", slog.Any("error", werr))
	}
	return report, err
}

// runWithTUI runs the conversion under a bubbletea program. Quitting the
// program cancels the run.
func runWithTUI(ctx context.Context, opts converter.Options, logger *slog.Logger, version string, stdio IO) (converter.Report, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	program := tea.NewProgram(ui.NewModel(version), tea.WithOutput(stdio.Stderr), tea.WithContext(ctx))
	opts.EventHooks = hooks.NewCLIHooks(slog.New(opts.Logger), false, program, nil)

	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Warn("Terminal UI stopped", slog.Any("error", err))
		}
		cancel(errQuitByUser)
	}()

	report, err := converter.Convert(ctx, opts)
	program.Quit()
	<-uiDone
	return report, err
}

// lockedBuffer is a bytes.Buffer safe for the concurrent writes of a log
// handler.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.WriteTo(w)
}
