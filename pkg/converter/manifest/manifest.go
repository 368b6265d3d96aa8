// Package manifest loads the book manifest (book.yml, book.yaml or book.toml)
// found at the root of a source tree.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrManifestLoad is returned when the manifest is missing, unreadable or invalid.
var ErrManifestLoad = errors.New("manifest load failed")

// FileNames lists the accepted manifest names, in lookup order.
var FileNames = []string{"book.yml", "book.yaml", "book.toml"}

// Manifest describes a book: its languages, standalone pages, footer
// fragments, extensions and per-extension settings.
type Manifest struct {
	Title      string                    `yaml:"title" toml:"title"`
	Languages  []string                  `yaml:"languages" toml:"languages"`
	Pages      []string                  `yaml:"pages" toml:"pages"`
	Fragments  []string                  `yaml:"fragments" toml:"fragments"`
	Extensions []string                  `yaml:"extensions" toml:"extensions"`
	Settings   map[string]map[string]any `yaml:"settings" toml:"settings"`

	// Path is the file the manifest was read from.
	Path string `yaml:"-" toml:"-"`
	// Fields holds every top-level key as written, for manifest.json.
	Fields map[string]any `yaml:"-" toml:"-"`
}

// Find returns the path of the manifest in dir.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: %w", ErrManifestLoad, p, err)
		}
	}
	return "", fmt.Errorf("%w: none of %s found in %s", ErrManifestLoad, strings.Join(FileNames, ", "), dir)
}

// Load finds, reads and validates the manifest in sourceDir.
func Load(sourceDir string) (*Manifest, error) {
	p, err := Find(sourceDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestLoad, p, err)
	}
	m, err := Parse(data, filepath.Ext(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestLoad, p, err)
	}
	m.Path = p
	return m, nil
}

// Parse decodes manifest data. ext selects the format (".toml", else YAML).
func Parse(data []byte, ext string) (*Manifest, error) {
	m := &Manifest{}
	raw := map[string]any{}
	if strings.EqualFold(ext, ".toml") {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(m); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, m); err != nil {
			return nil, err
		}
	}
	m.Fields = raw
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks names used to build paths.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Languages))
	for _, l := range m.Languages {
		if l == "" || strings.ContainsAny(l, `/\`) || strings.HasPrefix(l, ".") || strings.HasPrefix(l, "_") {
			return fmt.Errorf("invalid language %q", l)
		}
		if seen[l] {
			return fmt.Errorf("language %q listed twice", l)
		}
		seen[l] = true
	}
	for _, list := range []struct {
		what  string
		names []string
	}{{"page", m.Pages}, {"fragment", m.Fragments}} {
		for _, n := range list.names {
			clean := path.Clean(n)
			if n == "" || clean != n || path.IsAbs(n) || clean == ".." || strings.HasPrefix(clean, "../") {
				return fmt.Errorf("invalid %s name %q", list.what, n)
			}
		}
	}
	return nil
}

// Setting returns the value of key in the settings of extension ext.
func (m *Manifest) Setting(ext, key string) (any, bool) {
	if m == nil || m.Settings == nil {
		return nil, false
	}
	v, ok := m.Settings[ext][key]
	return v, ok
}

// StringsSetting returns a list setting, or def when unset or not a list of strings.
func (m *Manifest) StringsSetting(ext, key string, def []string) []string {
	v, ok := m.Setting(ext, key)
	if !ok {
		return def
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, it := range vv {
			s, ok := it.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	case string:
		return []string{vv}
	}
	return def
}

// StringSetting returns a string setting, or def.
func (m *Manifest) StringSetting(ext, key, def string) string {
	if v, ok := m.Setting(ext, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}
