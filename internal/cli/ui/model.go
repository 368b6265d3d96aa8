// Package ui is the bubbletea front end shown while a book converts.
package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/book-converter/internal/cli/hooks"
	"github.com/stackvity/book-converter/pkg/converter"
)

// listHeightMargin is the number of lines taken by header and footer.
const listHeightMargin = 4

// listRefreshInterval coalesces list rebuilds during bursts of events.
const listRefreshInterval = 50 * time.Millisecond

const (
	phaseStarting   = "Starting..."
	phaseConverting = "Converting..."
	phaseComplete   = "Complete"
	phaseErrors     = "Completed with errors"
	phaseFailed     = "Failed"
	phaseCancelled  = "Cancelled"
)

// Model is the TUI state. bubbletea calls Update and View from a single
// goroutine; hook events arrive as messages.
type Model struct {
	list    list.Model
	spinner spinner.Model
	version string

	width       int
	height      int
	initialized bool

	items []listItem
	index map[string]int

	summary    Summary
	phase      string
	fatalError string
	quitting   bool
	done       bool

	refreshPending bool
}

type listItem struct {
	path     string
	status   converter.Status
	message  string
	duration time.Duration
}

// Summary holds the counters shown in the footer.
type Summary struct {
	Queued    int
	Converted int
	Cached    int
	Skipped   int
	Failed    int
	Languages []string
	StartTime time.Time
	EndTime   time.Time
}

type listRefreshMsg struct{}

// NewModel creates the initial model; version is shown in the header.
func NewModel(version string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New(nil, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return &Model{
		list:    l,
		spinner: s,
		version: version,
		index:   make(map[string]int),
		summary: Summary{StartTime: time.Now()},
		phase:   phaseStarting,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if m.quitting || m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case hooks.FileDiscoveredMsg:
		if _, ok := m.index[msg.Path]; ok {
			return m, nil
		}
		m.add(listItem{path: msg.Path, status: converter.StatusPending})
		if m.phase == phaseStarting {
			m.phase = phaseConverting
		}
		return m, m.scheduleRefresh()

	case hooks.FileStatusUpdateMsg:
		i, ok := m.index[msg.Path]
		if !ok {
			i = m.add(listItem{path: msg.Path, status: converter.StatusPending})
		}
		item := &m.items[i]
		if isFinal(msg.Status) && !isFinal(item.status) {
			m.count(msg.Status)
		}
		item.status = msg.Status
		item.message = msg.Message
		item.duration = msg.Duration
		return m, m.scheduleRefresh()

	case hooks.RunCompleteMsg:
		m.complete(msg.Report)
		return m, m.list.SetItems(m.listItems())

	case listRefreshMsg:
		m.refreshPending = false
		return m, m.list.SetItems(m.listItems())
	}
	return m, nil
}

func (m *Model) add(it listItem) int {
	m.items = append(m.items, it)
	i := len(m.items) - 1
	m.index[it.path] = i
	m.summary.Queued++
	if lang, _, ok := strings.Cut(it.path, "/"); ok && !slices.Contains(m.summary.Languages, lang) {
		m.summary.Languages = append(m.summary.Languages, lang)
	}
	return i
}

func (m *Model) count(s converter.Status) {
	switch s {
	case converter.StatusSuccess:
		m.summary.Converted++
	case converter.StatusCached:
		m.summary.Converted++
		m.summary.Cached++
	case converter.StatusSkipped:
		m.summary.Skipped++
	case converter.StatusFailed:
		m.summary.Failed++
	}
}

// complete replaces the live counters with the report's.
func (m *Model) complete(r converter.Report) {
	m.done = true
	m.summary.EndTime = time.Now()
	s := r.Summary
	m.summary.Converted = s.ProcessedCount
	m.summary.Cached = s.CachedCount
	m.summary.Skipped = s.SkippedCount
	m.summary.Failed = s.ErrorCount
	if len(s.Languages) > 0 {
		m.summary.Languages = s.Languages
	}

	switch {
	case s.Cancelled:
		m.phase = phaseCancelled
	case s.FatalErrorOccurred:
		m.phase = phaseFailed
	case s.ErrorCount > 0:
		m.phase = phaseErrors
	default:
		m.phase = phaseComplete
	}
	if s.FatalErrorOccurred && !s.Cancelled {
		m.fatalError = "Run stopped by a fatal error."
		for _, e := range r.Errors {
			if e.IsFatal {
				m.fatalError = fmt.Sprintf("Fatal error: %s (%s)", e.Error, e.Path)
				break
			}
		}
	}
}

func (m *Model) scheduleRefresh() tea.Cmd {
	if m.refreshPending {
		return nil
	}
	m.refreshPending = true
	return tea.Tick(listRefreshInterval, func(time.Time) tea.Msg { return listRefreshMsg{} })
}

func (m *Model) listItems() []list.Item {
	items := make([]list.Item, len(m.items))
	for i, it := range m.items {
		items[i] = it
	}
	return items
}

func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseStarting
	}

	headerLeft := "Book Converter v" + m.version
	if len(m.summary.Languages) > 0 {
		headerLeft += " [" + strings.Join(m.summary.Languages, ", ") + "]"
	}
	headerRight := m.phase
	if !m.done {
		headerRight = m.spinner.View() + " " + m.phase
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight))

	end := m.summary.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	stats := fmt.Sprintf("Converted: %d (cached %d) | Skipped: %d | Failed: %d | Queued: %d | Elapsed: %s",
		m.summary.Converted, m.summary.Cached, m.summary.Skipped, m.summary.Failed, m.summary.Queued,
		end.Sub(m.summary.StartTime).Round(time.Millisecond))
	footer := FooterStyle.Width(m.width).Render(spread(m.width, stats, "q: quit"))

	parts := []string{header, m.list.View()}
	if m.fatalError != "" {
		parts = append(parts, StatusStyleFailed.Render(m.fatalError))
	}
	parts = append(parts, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// spread places left and right at the edges of a line of width w.
func spread(w int, left, right string) string {
	gap := w - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func isFinal(s converter.Status) bool {
	switch s {
	case converter.StatusSuccess, converter.StatusFailed, converter.StatusSkipped, converter.StatusCached:
		return true
	}
	return false
}

func (i listItem) FilterValue() string { return i.path }

func (i listItem) Title() string { return i.path }

func (i listItem) Description() string {
	style, icon := statusStyle(i.status)
	details := ""
	switch i.status {
	case converter.StatusFailed, converter.StatusSkipped:
		details = i.message
	case converter.StatusSuccess, converter.StatusCached:
		details = formatDuration(i.duration)
	}
	return strings.TrimRight(style.Render("["+icon+"]")+" "+details, " ")
}

func statusStyle(s converter.Status) (lipgloss.Style, string) {
	switch s {
	case converter.StatusSuccess:
		return StatusStyleSuccess, "✓"
	case converter.StatusFailed:
		return StatusStyleFailed, "✗"
	case converter.StatusSkipped:
		return StatusStyleSkipped, "S"
	case converter.StatusCached:
		return StatusStyleCached, "C"
	case converter.StatusProcessing:
		return StatusStyleProcessing, "…"
	}
	return StatusStylePending, " "
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
