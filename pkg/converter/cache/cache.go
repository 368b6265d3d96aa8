// Package cache stores parsed documents between runs so unchanged sources
// skip the external parser.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CacheFileName is the name of the index file inside the output directory.
const CacheFileName = ".bookconverter.cache"

// CacheSchemaVersion must be bumped whenever Entry or the file layout changes.
const CacheSchemaVersion = "2"

const (
	DefaultCacheFormat = "gob"
	CacheFormatGob     = "gob"
	CacheFormatJSON    = "json"
)

var (
	// ErrCacheLoad is returned by Load for I/O failures. Corrupt or stale
	// files are not errors; they load as an empty index.
	ErrCacheLoad = errors.New("failed to load cache index")
	// ErrCachePersist is returned when the index cannot be written.
	ErrCachePersist = errors.New("failed to persist cache index")
)

// Entry is the cached parse result of one source file.
type Entry struct {
	SourceModTime    time.Time `json:"sourceModTime"`
	SourceHash       string    `json:"sourceHash"`
	ParserID         string    `json:"parserId"`
	SchemaVersion    string    `json:"schemaVersion"`
	ConverterVersion string    `json:"converterVersion"`
	// Document is the JSON encoded document as returned by the parser,
	// before any extension ran.
	Document []byte `json:"document"`
}

// FileHeader is written before the index.
type FileHeader struct {
	SchemaVersion    string `json:"schemaVersion"`
	ConverterVersion string `json:"converterVersion"`
}

type jsonFile struct {
	Header FileHeader       `json:"header"`
	Index  map[string]Entry `json:"index"`
}

// CacheManager is the parse cache used by the consumers. Check and Update
// are called concurrently.
type CacheManager interface {
	Load(cachePath string) error
	// Check returns the cached document of filePath when the mod time, the
	// source hash and the parser identity all match.
	Check(filePath string, modTime time.Time, sourceHash, parserID string) ([]byte, bool)
	Update(filePath string, modTime time.Time, sourceHash, parserID string, document []byte) error
	Persist(cachePath string) error
}

type fileCacheManager struct {
	mu               sync.RWMutex
	index            map[string]Entry
	logger           *slog.Logger
	schemaVersion    string
	converterVersion string
	format           string
}

// NewFileCacheManager returns a CacheManager persisted as one file in the
// given format ("gob" or "json"; anything else means gob).
func NewFileCacheManager(loggerHandler slog.Handler, converterVersion, format string) CacheManager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format = strings.ToLower(format)
	if format != CacheFormatJSON {
		format = CacheFormatGob
	}
	if converterVersion == "" {
		converterVersion = "dev"
	}
	return &fileCacheManager{
		index:            make(map[string]Entry),
		logger:           slog.New(loggerHandler).With(slog.String("component", "cache"), slog.String("format", format)),
		schemaVersion:    CacheSchemaVersion,
		converterVersion: converterVersion,
		format:           format,
	}
}

func (c *fileCacheManager) versionOK(v string) bool {
	return c.converterVersion == "dev" || v == "dev" || v == c.converterVersion
}

func (c *fileCacheManager) Load(cachePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]Entry)

	f, err := os.Open(cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("No cache file, starting empty", slog.String("path", cachePath))
			return nil
		}
		return fmt.Errorf("%w: open %s: %w", ErrCacheLoad, cachePath, err)
	}
	defer f.Close()

	var header FileHeader
	var index map[string]Entry
	if c.format == CacheFormatJSON {
		var data jsonFile
		err = json.NewDecoder(f).Decode(&data)
		header, index = data.Header, data.Index
	} else {
		dec := gob.NewDecoder(f)
		if err = dec.Decode(&header); err == nil {
			err = dec.Decode(&index)
		}
	}
	if err != nil {
		c.logger.Warn("Cache file unreadable, ignoring it", slog.String("path", cachePath), slog.String("error", err.Error()))
		return nil
	}
	if header.SchemaVersion != c.schemaVersion || !c.versionOK(header.ConverterVersion) {
		c.logger.Info("Cache file written by another version, ignoring it",
			slog.String("path", cachePath),
			slog.String("schema", header.SchemaVersion),
			slog.String("converter", header.ConverterVersion))
		return nil
	}
	if index != nil {
		c.index = index
	}
	c.logger.Debug("Cache loaded", slog.String("path", cachePath), slog.Int("entries", len(c.index)))
	return nil
}

func (c *fileCacheManager) Check(filePath string, modTime time.Time, sourceHash, parserID string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.index[filePath]
	c.mu.RUnlock()
	switch {
	case !ok:
		return nil, false
	case entry.SchemaVersion != c.schemaVersion, !c.versionOK(entry.ConverterVersion):
		return nil, false
	case !entry.SourceModTime.Equal(modTime), entry.SourceHash != sourceHash, entry.ParserID != parserID:
		c.logger.Debug("Cache miss", slog.String("path", filePath))
		return nil, false
	}
	return entry.Document, true
}

func (c *fileCacheManager) Update(filePath string, modTime time.Time, sourceHash, parserID string, document []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[filePath] = Entry{
		SourceModTime:    modTime,
		SourceHash:       sourceHash,
		ParserID:         parserID,
		SchemaVersion:    c.schemaVersion,
		ConverterVersion: c.converterVersion,
		Document:         document,
	}
	return nil
}

// Persist writes the index atomically. An empty index removes the file.
func (c *fileCacheManager) Persist(cachePath string) error {
	c.mu.RLock()
	index := make(map[string]Entry, len(c.index))
	for k, v := range c.index {
		index[k] = v
	}
	c.mu.RUnlock()

	if len(index) == 0 {
		if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove empty cache file", slog.String("path", cachePath), slog.String("error", err.Error()))
		}
		return nil
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(cachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	header := FileHeader{SchemaVersion: c.schemaVersion, ConverterVersion: c.converterVersion}
	if c.format == CacheFormatJSON {
		enc := json.NewEncoder(tmp)
		enc.SetIndent("", "  ")
		err = enc.Encode(jsonFile{Header: header, Index: index})
	} else {
		enc := gob.NewEncoder(tmp)
		if err = enc.Encode(header); err == nil {
			err = enc.Encode(index)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrCachePersist, c.format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return fmt.Errorf("%w: %w", ErrCachePersist, err)
	}
	renamed = true
	c.logger.Debug("Cache persisted", slog.String("path", cachePath), slog.Int("entries", len(index)))
	return nil
}
