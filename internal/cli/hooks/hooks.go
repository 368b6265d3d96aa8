// Package hooks bridges converter events to the terminal: bubbletea
// messages for the TUI, a progress bar, or log lines.
package hooks

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"

	"github.com/stackvity/book-converter/pkg/converter"
)

// FileDiscoveredMsg signals that a job was queued.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg signals a change in a job's status.
type FileStatusUpdateMsg struct {
	Path     string
	Status   converter.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg carries the final report.
type RunCompleteMsg struct{ Report converter.Report }

// TUIProgram is the part of *tea.Program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the part of *progressbar.ProgressBar the hooks need.
type ProgressBar interface {
	Add(num int) error
	ChangeMax(max int)
	GetMax() int
	Describe(description string)
	Close() error
}

// NewProgressBar returns a progress bar on w whose maximum grows as jobs are
// discovered.
func NewProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(0,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Converting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
	)
}

// CLIHooks implements converter.Hooks. At most one of the TUI program and
// the progress bar is used; without either, events are logged.
type CLIHooks struct {
	logger  *slog.Logger
	verbose bool
	tui     TUIProgram
	bar     ProgressBar

	mu sync.Mutex // guards bar
}

var _ converter.Hooks = (*CLIHooks)(nil)

// NewCLIHooks creates a new CLIHooks. tui takes precedence over bar; both
// may be nil.
func NewCLIHooks(logger *slog.Logger, verbose bool, tui TUIProgram, bar ProgressBar) *CLIHooks {
	h := &CLIHooks{logger: logger, verbose: verbose}
	switch {
	case tui != nil:
		h.tui = tui
	case bar != nil:
		h.bar = bar
	}
	return h
}

func (h *CLIHooks) OnFileDiscovered(path string) error {
	switch {
	case h.tui != nil:
		h.tui.Send(FileDiscoveredMsg{Path: path})
	case h.bar != nil:
		h.mu.Lock()
		h.bar.ChangeMax(h.bar.GetMax() + 1)
		h.mu.Unlock()
	case h.verbose:
		h.logger.Debug("Job queued", slog.String("path", path))
	}
	return nil
}

// OnFileStatusUpdate is called concurrently by the consumers.
func (h *CLIHooks) OnFileStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	if h.tui != nil {
		h.tui.Send(FileStatusUpdateMsg{Path: path, Status: status, Message: message, Duration: duration})
		return nil
	}

	if h.bar != nil && isFinal(status) {
		h.mu.Lock()
		h.bar.Describe(path)
		_ = h.bar.Add(1)
		h.mu.Unlock()
	}

	switch {
	case status == converter.StatusFailed:
		h.logger.Warn("Job failed", slog.String("path", path), slog.String("error", message))
	case h.verbose && h.bar == nil:
		attrs := []any{slog.String("path", path), slog.String("status", string(status))}
		if duration > 0 {
			attrs = append(attrs, slog.Duration("duration", duration))
		}
		if message != "" {
			attrs = append(attrs, slog.String("message", message))
		}
		level := slog.LevelDebug
		if isFinal(status) {
			level = slog.LevelInfo
		}
		h.logger.Log(context.Background(), level, "Job status", attrs...)
	}
	return nil
}

func (h *CLIHooks) OnRunComplete(report converter.Report) error {
	if h.tui != nil {
		h.tui.Send(RunCompleteMsg{Report: report})
		return nil
	}
	if h.bar != nil {
		h.mu.Lock()
		_ = h.bar.Close()
		h.mu.Unlock()
	}
	return nil
}

func isFinal(s converter.Status) bool {
	switch s {
	case converter.StatusSuccess, converter.StatusFailed, converter.StatusSkipped, converter.StatusCached:
		return true
	}
	return false
}
