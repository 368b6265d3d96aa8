// Package util holds small path and file helpers shared by the converter and
// its extensions.
package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MatchesGitignore reports whether relPath (slash separated, relative to the
// directory that defines the pattern) matches a gitignore style pattern.
// Rooted patterns, and patterns containing a slash, only match from the
// start of relPath; others match any trailing run of path segments. A "**"
// segment matches zero or more segments.
func MatchesGitignore(pattern, relPath string, rooted bool) bool {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if pattern == "" || relPath == "" || relPath == "." {
		return false
	}
	pat := strings.Split(pattern, "/")
	segs := strings.Split(relPath, "/")
	if rooted || len(pat) > 1 {
		return matchSegments(pat, segs)
	}
	for i := range segs {
		if matchSegments(pat, segs[i:]) {
			return true
		}
	}
	return false
}

// matchSegments matches the whole of segs. A pattern that matches a
// directory also matches everything below it.
func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return true
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// IsReservedName reports whether a directory entry is excluded from content
// discovery: names starting with "_" or ".".
func IsReservedName(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

// WriteFileAtomic writes data to a temporary file next to name and renames it
// into place, so readers see either the old file or the complete new one.
// Parent directories are created.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
