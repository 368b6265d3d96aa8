package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/stackvity/book-converter/pkg/converter/cache"
	"github.com/stackvity/book-converter/pkg/util"
)

// writeJSON encodes v and writes it atomically to path, creating parents.
func writeJSON(path string, v any, pretty bool) error {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrWriteFailed, path, err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMkdirFailed, filepath.Dir(path), err)
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	return nil
}

// prepareOutputDir creates dir, or checks that it is empty. The parse cache
// does not count as content. With force, existing content is removed and
// the cache kept.
func prepareOutputDir(dir string, force bool, logger *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrMkdirFailed, dir, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: cannot read output directory %s: %w", ErrConfigValidation, dir, err)
	}

	var existing []os.DirEntry
	for _, e := range entries {
		if e.Name() != cache.CacheFileName {
			existing = append(existing, e)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if !force {
		return fmt.Errorf("%w: %s (%d entries); use --force to replace it", ErrOutputNotEmpty, dir, len(existing))
	}
	logger.Info("Clearing output directory", slog.String("path", dir), slog.Int("entries", len(existing)))
	for _, e := range existing {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("%w: clear %s: %w", ErrWriteFailed, dir, err)
		}
	}
	return nil
}

// lockOutput takes the lock file next to the output directory.
func lockOutput(outputPath string) (*flock.Flock, error) {
	lock := flock.New(filepath.Clean(outputPath) + LockSuffix)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOutputLocked, lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, lock.Path())
	}
	return lock, nil
}
