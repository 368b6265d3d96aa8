package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/book-converter/pkg/converter/manifest"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "book.yml", `
title: Course
languages: [de, en]
pages: [about]
fragments: [footer]
extensions: [numbering, indexterms]
settings:
  numbering:
    classes: [box, card]
  diagrams:
    command: dot
edition: 2
`)
	m, err := manifest.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Course", m.Title)
	assert.Equal(t, []string{"de", "en"}, m.Languages)
	assert.Equal(t, []string{"about"}, m.Pages)
	assert.Equal(t, []string{"footer"}, m.Fragments)
	assert.Equal(t, []string{"numbering", "indexterms"}, m.Extensions)
	assert.Equal(t, filepath.Join(dir, "book.yml"), m.Path)
	assert.Equal(t, 2, m.Fields["edition"])
	assert.Equal(t, []string{"box", "card"}, m.StringsSetting("numbering", "classes", nil))
	assert.Equal(t, "dot", m.StringSetting("diagrams", "command", "x"))
	assert.Equal(t, "x", m.StringSetting("diagrams", "missing", "x"))
	assert.Equal(t, []string{"d"}, m.StringsSetting("none", "classes", []string{"d"}))
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "book.toml", `
title = "Course"
languages = ["en"]
extensions = ["textjoin"]

[settings.indexterms]
file = "terms.json"
`)
	m, err := manifest.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, m.Languages)
	assert.Equal(t, "terms.json", m.StringSetting("indexterms", "file", ""))
	assert.Equal(t, "Course", m.Fields["title"])
}

func TestLoad_PrefersYML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "book.yml", "title: yml\n")
	writeFile(t, dir, "book.toml", "title = \"toml\"\n")
	m, err := manifest.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "yml", m.Title)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		msg     string
	}{
		{"missing", "", "", "none of book.yml"},
		{"bad yaml", "book.yml", "languages: [de\n", "book.yml"},
		{"bad toml", "book.toml", "languages = [\n", "book.toml"},
		{"dup language", "book.yml", "languages: [en, en]\n", "listed twice"},
		{"reserved language", "book.yml", "languages: [_drafts]\n", "invalid language"},
		{"escaping page", "book.yml", "pages: [../secret]\n", "invalid page"},
		{"unclean fragment", "book.yml", "fragments: [a//b]\n", "invalid fragment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, dir, tt.file, tt.content)
			}
			_, err := manifest.Load(dir)
			require.ErrorIs(t, err, manifest.ErrManifestLoad)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
