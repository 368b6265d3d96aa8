package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackvity/book-converter/internal/cli"
	"github.com/stackvity/book-converter/internal/cli/config"
	"github.com/stackvity/book-converter/internal/cli/runner"
	"github.com/stackvity/book-converter/pkg/converter"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes of the book-converter binary.
const (
	exitOK          = 0
	exitRunFailed   = 1
	exitUsage       = 2
	exitManifest    = 3
	exitUnknownExt  = 4
	exitStructure   = 5
	exitInterrupted = 130
)

// tuiStartDelay gives the terminal a moment before the TUI takes it over.
const tuiStartDelay = 100 * time.Millisecond

// usageError marks command-line mistakes so they exit with exitUsage.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book-converter <source-dir> -o <output-dir>",
		Short: "Converts a multi-language book into structured JSON content.",
		Long: `book-converter reads a book source directory with one subdirectory per
language, checks that every language has the same section tree, converts
each section's index file with pandoc and writes the result to the output
directory together with a book manifest.

It features:
  - Parallel conversion with a bounded queue.
  - Built-in extensions (numbering, index terms, diagrams, git info, ...).
  - A parse cache for fast repeated runs.
  - An interactive terminal UI or a progress bar.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runRoot,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	cmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")
	registerFlags(cmd)
	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfgFile, _ := cmd.Flags().GetString("config")
	profileName, _ := cmd.Flags().GetString("profile")

	config.LogOutput = cmd.ErrOrStderr()
	opts, logger, err := config.LoadAndValidate(args[0], cfgFile, profileName, version, cmd.Flags())
	if err != nil {
		return err
	}

	if f, ok := cmd.ErrOrStderr().(*os.File); ok && term.IsTerminal(int(f.Fd())) && !opts.Verbose && opts.TuiEnabled {
		time.Sleep(tuiStartDelay)
	}

	_, err = cli.Run(ctx, opts, logger, version, cli.NewIO(cmd.OutOrStdout(), cmd.ErrOrStderr()))
	return err
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("config", "", "Configuration file path (default: search ., $HOME/.config/book-converter, $HOME/.book-converter)")
	flags.String("profile", "", "Name of the configuration profile to apply")
	flags.BoolP("verbose", "v", false, "Enable debug logging (disables the TUI and progress bar)")

	flags.StringP("output-dir", "o", "", "Required. Output directory")
	flags.StringSliceP("extensions", "e", nil, "Extensions to enable, replacing the manifest's list (comma separated or repeated)")
	flags.BoolP("force", "f", converter.DefaultForceOverwrite, "Write into a non-empty output directory")
	flags.String("on-error", string(converter.DefaultOnErrorMode), `Behavior on section errors ("continue", "fail" or "stop")`)
	flags.Bool("ordered-hooks", converter.DefaultOrderedHooks, "Deliver progress events in discovery order")

	flags.Int("concurrency", converter.DefaultConcurrency, "Number of conversion workers (0 for CPU count)")
	flags.Int("queue-size", converter.DefaultQueueSize, "Capacity of the job queue (0 for twice the worker count)")
	flags.Bool("no-cache", false, "Ignore cached parse results (the cache is still written)")
	flags.Bool("clear-cache", false, "Delete the parse cache before starting")
	flags.StringArray("ignore", []string{}, "Glob pattern of source paths to ignore (repeatable)")

	flags.String("output-format", string(converter.DefaultOutputFormat), `Summary format ("text" or "json")`)
	flags.Bool("no-tui", false, "Disable the interactive terminal UI")
	flags.Bool("pretty", converter.DefaultPrettyJSON, "Indent the generated JSON files")

	flags.String("pandoc", runner.DefaultPandocPath, "Path to the pandoc binary")
	flags.String("pandoc-from", runner.DefaultPandocInput, "Pandoc reader for the source files")
	flags.String("dot", runner.DefaultDotPath, "Path to the graphviz dot binary used by the diagrams extension")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(context.Background(), rootCmd)
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ue *usageError
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\nRun '%s --help' for usage.\n", err, cmd.Name())
	case errors.Is(err, converter.ErrJobsFailed), errors.Is(err, converter.ErrCancelled):
		// already reported by the summary and the run log
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, converter.ErrCancelled):
		return exitInterrupted
	case errors.As(err, &ue), errors.Is(err, converter.ErrConfigValidation):
		return exitUsage
	case errors.Is(err, converter.ErrManifestLoad):
		return exitManifest
	case errors.Is(err, converter.ErrUnknownExtension):
		return exitUnknownExt
	case errors.Is(err, converter.ErrStructuralInconsistency):
		return exitStructure
	}
	return exitRunFailed
}
