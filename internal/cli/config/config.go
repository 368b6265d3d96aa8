// Package config merges defaults, config file, profile, environment and
// command-line flags into converter.Options.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/book-converter/internal/cli/runner"
	"github.com/stackvity/book-converter/pkg/converter"
	"github.com/stackvity/book-converter/pkg/converter/cache"
)

const (
	EnvPrefix         = "BOOKCONVERTER"
	DefaultConfigName = "book-converter"
)

// LogOutput receives the CLI log. Tests replace it.
var LogOutput io.Writer = os.Stderr

// boundFlags maps flag names to the config keys they set.
var boundFlags = map[string]string{
	"output-dir":    "outputPath",
	"extensions":    "extensions",
	"force":         "force",
	"verbose":       "verbose",
	"concurrency":   "concurrency",
	"queue-size":    "queueSize",
	"on-error":      "onError",
	"ordered-hooks": "orderedHooks",
	"ignore":        "ignore",
	"output-format": "outputFormat",
	"pandoc":        "pandoc",
	"pandoc-from":   "pandocFrom",
	"dot":           "dot",
	"pretty":        "pretty",
}

// LoadAndValidate loads the configuration for converting the book at
// inputPath and returns the options with the CLI logger installed.
// Interface dependencies (parser, hooks, git client) are left to the caller.
func LoadAndValidate(inputPath, cfgFile, profileName, appVersion string, flags *pflag.FlagSet) (converter.Options, *slog.Logger, error) {
	var opts converter.Options
	v := viper.New()

	level := slog.LevelInfo
	if verbose, err := flags.GetBool("verbose"); err == nil && verbose {
		level = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(LogOutput, &slog.HandlerOptions{Level: level})
	logger := slog.New(logHandler)

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			logger.Debug("No home directory, searching the working directory only", slog.Any("error", err))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			used := cfgFile
			if used == "" {
				used = v.ConfigFileUsed()
			}
			err = fmt.Errorf("%w: error reading config file '%s': %w", converter.ErrConfigValidation, used, err)
			logger.Error(err.Error())
			return opts, logger, err
		}
		logger.Debug("No configuration file found, using defaults, environment and flags")
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		logger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	if profileName != "" {
		profile := v.Sub("profiles." + profileName)
		if profile == nil {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("%w: profile '%s' not found in config file '%s'", converter.ErrConfigValidation, profileName, configPath)
			logger.Error(err.Error())
			return opts, logger, err
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			err = fmt.Errorf("%w: error merging profile '%s': %w", converter.ErrConfigValidation, profileName, err)
			logger.Error(err.Error())
			return opts, logger, err
		}
		logger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}
	opts.ProfileName = profileName

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range boundFlags {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return opts, logger, fmt.Errorf("error binding flag '--%s': %w", name, err)
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		err = fmt.Errorf("%w: error unmarshalling configuration: %w", converter.ErrConfigValidation, err)
		logger.Error(err.Error())
		return opts, logger, err
	}
	opts.InputPath = inputPath
	opts.AppVersion = appVersion
	applyFlagOverrides(&opts, flags)

	if opts.Verbose && level != slog.LevelDebug {
		// verbose came from the config file or environment
		logHandler = slog.NewTextHandler(LogOutput, &slog.HandlerOptions{Level: slog.LevelDebug})
		logger = slog.New(logHandler)
	}
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loaded",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.String("input", opts.InputPath),
		slog.String("output", opts.OutputPath),
		slog.Any("extensions", opts.Extensions),
	)
	return opts, logger, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("outputPath", "")
	v.SetDefault("extensions", []string{})
	v.SetDefault("force", converter.DefaultForceOverwrite)
	v.SetDefault("verbose", converter.DefaultVerbose)
	v.SetDefault("tui", converter.DefaultTuiEnabled)
	v.SetDefault("onError", string(converter.DefaultOnErrorMode))
	v.SetDefault("orderedHooks", converter.DefaultOrderedHooks)

	v.SetDefault("concurrency", converter.DefaultConcurrency)
	v.SetDefault("queueSize", converter.DefaultQueueSize)
	v.SetDefault("cache", converter.DefaultCacheEnabled)
	v.SetDefault("cacheFormat", converter.DefaultCacheFormat)

	v.SetDefault("ignore", []string{})
	v.SetDefault("contentExtensions", converter.DefaultContentExtensions)

	v.SetDefault("pretty", converter.DefaultPrettyJSON)
	v.SetDefault("outputFormat", string(converter.DefaultOutputFormat))
	v.SetDefault("pandoc", runner.DefaultPandocPath)
	v.SetDefault("pandocFrom", runner.DefaultPandocInput)
	v.SetDefault("dot", runner.DefaultDotPath)
}

// applyFlagOverrides makes explicitly set flags win over every other source,
// including the flags that have no config key of their own.
func applyFlagOverrides(opts *converter.Options, flags *pflag.FlagSet) {
	if flags.Changed("output-dir") {
		opts.OutputPath, _ = flags.GetString("output-dir")
	}
	if flags.Changed("extensions") {
		opts.Extensions, _ = flags.GetStringSlice("extensions")
	}
	if flags.Changed("verbose") {
		opts.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("force") {
		opts.ForceOverwrite, _ = flags.GetBool("force")
	}
	if flags.Changed("ordered-hooks") {
		opts.OrderedHooks, _ = flags.GetBool("ordered-hooks")
	}
	if noTUI, _ := flags.GetBool("no-tui"); noTUI {
		opts.TuiEnabled = false
	}
	if flags.Changed("no-cache") {
		opts.IgnoreCacheRead, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("clear-cache") {
		opts.ClearCache, _ = flags.GetBool("clear-cache")
	}
}

func isValidEnumValue[T ~string](value T, allowed []T) bool {
	return slices.Contains(allowed, value)
}

// validateAndDeriveOptions checks the merged options and resolves paths and
// list values. Errors wrap converter.ErrConfigValidation.
func validateAndDeriveOptions(opts *converter.Options, logger *slog.Logger) error {
	fail := func(key string, format string, args ...any) error {
		err := fmt.Errorf("%w: "+format, append([]any{converter.ErrConfigValidation}, args...)...)
		logger.Error(err.Error(), slog.String("key", key))
		return err
	}

	if opts.InputPath == "" {
		return fail("inputPath", "source directory is required")
	}
	absInput, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return fail("inputPath", "cannot resolve source directory '%s': %w", opts.InputPath, err)
	}
	opts.InputPath = absInput
	info, err := os.Stat(absInput)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fail("inputPath", "source directory '%s' does not exist", absInput)
	case err != nil:
		return fail("inputPath", "cannot access source directory '%s': %w", absInput, err)
	case !info.IsDir():
		return fail("inputPath", "source path '%s' is not a directory", absInput)
	}

	if opts.OutputPath == "" {
		return fail("outputPath", "output directory is required (-o, --output-dir)")
	}
	absOutput, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return fail("outputPath", "cannot resolve output directory '%s': %w", opts.OutputPath, err)
	}
	opts.OutputPath = absOutput

	onError := []converter.OnErrorMode{converter.OnErrorContinue, converter.OnErrorFail, converter.OnErrorStop}
	if !isValidEnumValue(opts.OnErrorMode, onError) {
		return fail("onError", "invalid value '%s' for 'onError' (flag --on-error). Allowed: %v", opts.OnErrorMode, onError)
	}
	formats := []converter.OutputFormat{converter.OutputFormatText, converter.OutputFormatJSON}
	if !isValidEnumValue(opts.OutputFormat, formats) {
		return fail("outputFormat", "invalid value '%s' for 'outputFormat' (flag --output-format). Allowed: %v", opts.OutputFormat, formats)
	}
	cacheFormats := []string{cache.CacheFormatGob, cache.CacheFormatJSON}
	if !isValidEnumValue(opts.CacheFormat, cacheFormats) {
		return fail("cacheFormat", "invalid value '%s' for 'cacheFormat'. Allowed: %v", opts.CacheFormat, cacheFormats)
	}
	if opts.Concurrency < 0 {
		return fail("concurrency", "invalid value '%d' for 'concurrency' (flag --concurrency). Must be >= 0", opts.Concurrency)
	}
	if opts.QueueSize < 0 {
		return fail("queueSize", "invalid value '%d' for 'queueSize' (flag --queue-size). Must be >= 0", opts.QueueSize)
	}

	opts.Extensions = cleanList(opts.Extensions)
	opts.IgnorePatterns = cleanList(opts.IgnorePatterns)
	opts.ContentExtensions = cleanList(opts.ContentExtensions)
	if len(opts.ContentExtensions) == 0 {
		return fail("contentExtensions", "at least one content file extension is required")
	}

	if opts.OutputFormat == converter.OutputFormatJSON && opts.TuiEnabled {
		logger.Debug("JSON summary requested, disabling TUI")
		opts.TuiEnabled = false
	}
	return nil
}

// cleanList trims entries, splits comma-joined values from environment
// variables and drops empties and duplicates.
func cleanList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" && !slices.Contains(out, part) {
				out = append(out, part)
			}
		}
	}
	return out
}
