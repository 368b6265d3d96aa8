// Package runner drives the external tools of a conversion: pandoc as the
// document parser and graphviz as the diagram renderer.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackvity/book-converter/pkg/converter/document"
	"github.com/stackvity/book-converter/pkg/converter/encoding"
	"github.com/stackvity/book-converter/pkg/converter/parser"
)

const (
	// maxLogOutputBytes limits tool output quoted in logs and errors.
	maxLogOutputBytes = 1024
	// maxReadBytes caps what is read from a tool's stdout.
	maxReadBytes = 64 * 1024 * 1024

	// waitDelay bounds the wait for output pipes after a cancelled tool
	// was killed.
	waitDelay = 2 * time.Second

	DefaultPandocPath  = "pandoc"
	DefaultPandocInput = "markdown"
	DefaultDotPath     = "dot"
)

// ErrToolFailed is returned when an external tool exits non-zero, cannot be
// started or writes too much output.
var ErrToolFailed = errors.New("external tool failed")

// toolError carries the tool name, exit code and trimmed stderr.
type toolError struct {
	tool     string
	exitCode int
	stderr   string
	err      error
}

func (e *toolError) Error() string {
	msg := fmt.Sprintf("%s failed (exit code %d): %v", e.tool, e.exitCode, e.err)
	if e.stderr != "" {
		msg += ": " + e.stderr
	}
	return msg
}

func (e *toolError) Unwrap() error { return e.err }

func (e *toolError) Is(target error) bool { return target == ErrToolFailed }

// limitedBuffer keeps at most max bytes and records whether more came.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLogOutputBytes {
		return s[:maxLogOutputBytes] + "... (truncated)"
	}
	return s
}

// run executes name with args, feeding stdin, and returns stdout.
func run(ctx context.Context, logger *slog.Logger, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	stdout := &limitedBuffer{max: maxReadBytes}
	stderr := &limitedBuffer{max: maxLogOutputBytes * 4}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	stderrText := truncate(stderr.buf.String())
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Debug("Tool execution failed",
			slog.String("tool", name), slog.Int("exitCode", exitCode), slog.String("stderr", stderrText))
		return nil, &toolError{tool: name, exitCode: exitCode, stderr: stderrText, err: err}
	}
	if stdout.truncated {
		return nil, &toolError{tool: name, err: fmt.Errorf("stdout exceeded %d bytes", maxReadBytes)}
	}
	if stderrText != "" {
		logger.Debug("Tool stderr output (on success)", slog.String("tool", name), slog.String("stderr", stderrText))
	}
	return stdout.buf.Bytes(), nil
}

// PandocParser implements parser.Parser with `pandoc -f <input> -t json`.
// Sources are normalized to UTF-8 first.
type PandocParser struct {
	path   string
	input  string
	enc    encoding.Handler
	logger *slog.Logger

	versionOnce sync.Once
	version     string
	parsed      atomic.Int64
}

// NewPandocParser returns a parser running the pandoc binary at path.
// input is pandoc's reader name; empty means markdown.
func NewPandocParser(path, input string, loggerHandler slog.Handler) *PandocParser {
	if path == "" {
		path = DefaultPandocPath
	}
	if input == "" {
		input = DefaultPandocInput
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &PandocParser{
		path:   path,
		input:  input,
		enc:    encoding.NewHandler(""),
		logger: slog.New(loggerHandler).With(slog.String("component", "pandoc")),
	}
}

func (p *PandocParser) Parse(ctx context.Context, path string) (*document.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, parser.Errorf(path, err, "cannot read source")
	}
	content, encName, err := p.enc.Normalize(raw)
	if err != nil {
		return nil, parser.Errorf(path, err, "cannot decode source")
	}
	if encName != "utf-8" {
		p.logger.Debug("Source converted to UTF-8", slog.String("path", path), slog.String("encoding", encName))
	}

	out, err := run(ctx, p.logger, content, p.path, "-f", p.input, "-t", "json")
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, parser.Errorf(path, err, "pandoc")
	}
	p.parsed.Add(1)
	return parser.DecodeBytes(out, path)
}

// Identity names the pandoc version and reader; it keys the parse cache.
func (p *PandocParser) Identity() string {
	p.versionOnce.Do(func() {
		p.version = "unknown"
		out, err := run(context.Background(), p.logger, nil, p.path, "--version")
		if err != nil {
			p.logger.Warn("Cannot determine pandoc version", slog.String("error", err.Error()))
			return
		}
		first, _, _ := strings.Cut(string(out), "\n")
		if fields := strings.Fields(first); len(fields) > 0 {
			p.version = fields[len(fields)-1]
		}
	})
	return "pandoc/" + p.version + "/" + p.input
}

// Cleanup logs the parser's totals; pandoc runs hold nothing between files.
func (p *PandocParser) Cleanup(context.Context) error {
	p.logger.Debug("Pandoc parser done", slog.Int64("filesParsed", p.parsed.Load()))
	return nil
}

// CommandRenderer implements extension.Renderer with graphviz.
type CommandRenderer struct {
	dotPath string
	logger  *slog.Logger
}

// NewCommandRenderer returns a renderer running the dot binary at dotPath.
func NewCommandRenderer(dotPath string, loggerHandler slog.Handler) *CommandRenderer {
	if dotPath == "" {
		dotPath = DefaultDotPath
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &CommandRenderer{
		dotPath: dotPath,
		logger:  slog.New(loggerHandler).With(slog.String("component", "renderer")),
	}
}

// Render returns the SVG for a "dot" or "graphviz" diagram.
func (r *CommandRenderer) Render(ctx context.Context, format string, source []byte) ([]byte, error) {
	switch format {
	case "dot", "graphviz":
	default:
		return nil, fmt.Errorf("unsupported diagram format %q", format)
	}
	svg, err := run(ctx, r.logger, source, r.dotPath, "-Tsvg")
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		return nil, &toolError{tool: r.dotPath, err: fmt.Errorf("output is not SVG: %s", truncate(firstLine(svg)))}
	}
	return svg, nil
}

func firstLine(b []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(b))
	if sc.Scan() {
		return sc.Text()
	}
	return ""
}
