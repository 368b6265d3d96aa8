package converter

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackvity/book-converter/pkg/util"
)

// ignoreMatcher applies .bookconverterignore and configured patterns to
// paths relative to the source root. Later patterns win; "!" negates.
type ignoreMatcher struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern  string
	orig     string
	negated  bool
	dirOnly  bool
	isRooted bool
}

func newIgnoreMatcher(sourceRoot string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	m := &ignoreMatcher{}
	filePatterns, err := loadPatternsFromFile(filepath.Join(sourceRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	m.add(filePatterns)
	m.add(configPatterns)
	logger.Debug("Ignore patterns loaded",
		slog.Int("fromFile", len(filePatterns)), slog.Int("fromConfig", len(configPatterns)))
	return m, nil
}

// loadPatternsFromFile returns the non-comment lines of an ignore file; a
// missing file has no patterns.
func loadPatternsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ignore file %s: %w", path, err)
	}
	defer f.Close()
	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return patterns, nil
}

func (m *ignoreMatcher) add(raw []string) {
	for _, r := range raw {
		p := ignorePattern{orig: r}
		s := strings.TrimSpace(r)
		if strings.HasPrefix(s, "!") {
			p.negated = true
			s = s[1:]
		}
		if strings.HasPrefix(s, "/") {
			p.isRooted = true
			s = strings.TrimPrefix(s, "/")
		}
		if strings.HasSuffix(s, "/") {
			p.dirOnly = true
			s = strings.TrimSuffix(s, "/")
		}
		p.pattern = filepath.ToSlash(s)
		if p.pattern != "" {
			m.patterns = append(m.patterns, p)
		}
	}
}

// Match returns whether relPath is ignored and the pattern that decided it.
func (m *ignoreMatcher) Match(relPath string, isDir bool) (bool, string) {
	ignored, by := false, ""
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if util.MatchesGitignore(p.pattern, relPath, p.isRooted) {
			ignored, by = !p.negated, p.orig
		}
	}
	if !ignored {
		by = ""
	}
	return ignored, by
}
