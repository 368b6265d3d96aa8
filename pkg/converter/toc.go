package converter

import (
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/stackvity/book-converter/pkg/converter/document"
)

// TOCEntry is one section in toc.json.
type TOCEntry struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	ShortTitle string               `json:"shortTitle,omitempty"`
	Kind       document.SectionKind `json:"kind,omitempty"`
	Children   []*TOCEntry          `json:"children"`
}

// buildTOC nests the converted sections of one language by id. Results are
// ordered by queueing order; a section whose parent failed is attached to
// its closest converted ancestor.
func buildTOC(results []Result) []*TOCEntry {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Job.Seq < sorted[j].Job.Seq })

	roots := []*TOCEntry{}
	byID := make(map[string]*TOCEntry, len(sorted))
	for _, r := range sorted {
		e := &TOCEntry{
			ID:         r.Job.ID,
			Title:      r.Title,
			ShortTitle: r.ShortTitle,
			Kind:       r.SectionKind,
			Children:   []*TOCEntry{},
		}
		byID[e.ID] = e
		parent := findParent(byID, e.ID)
		if parent == nil {
			roots = append(roots, e)
		} else {
			parent.Children = append(parent.Children, e)
		}
	}
	return roots
}

func findParent(byID map[string]*TOCEntry, id string) *TOCEntry {
	for dir := path.Dir(id); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if p, ok := byID[dir]; ok {
			return p
		}
	}
	return nil
}

func (e *Engine) writeTOCs(langs []string) error {
	for _, lang := range langs {
		toc := buildTOC(append(e.aggregator.sections(lang), e.producer.Containers(lang)...))
		if err := writeJSON(filepath.Join(e.opts.OutputPath, lang, TOCFileName), toc, e.opts.PrettyJSON); err != nil {
			return err
		}
	}
	return nil
}

// writeManifest merges the book manifest, the extension fields and a build
// section into manifest.json. Extension fields override manifest keys.
func (e *Engine) writeManifest(langs []string, startTime time.Time) error {
	out := make(map[string]any, len(e.manifest.Fields)+4)
	for k, v := range e.manifest.Fields {
		out[k] = v
	}
	for k, v := range e.exts.ManifestFields() {
		if _, clash := out[k]; clash {
			e.logger.Debug("Extension overrides manifest field", slog.String("field", k))
		}
		out[k] = v
	}
	out["languages"] = langs
	out["extensions"] = e.exts.Names()
	out["build"] = map[string]any{
		"runId":         e.runID,
		"version":       e.opts.AppVersion,
		"schemaVersion": ManifestSchemaVersion,
		"startedAt":     startTime.UTC(),
		"finishedAt":    time.Now().UTC(),
	}
	return writeJSON(filepath.Join(e.opts.OutputPath, ManifestFileName), out, e.opts.PrettyJSON)
}
