// Package encoding normalizes source files to UTF-8 before they are handed
// to the parser.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrBinaryContent is returned by Normalize for content that is not text.
var ErrBinaryContent = errors.New("content looks binary")

const (
	sniffLen      = 512
	nullCheckLen  = 1024
	nullThreshold = 0.10
)

var textMIMEPrefixes = []string{
	"text/",
	"application/json",
	"application/xml",
	"application/octet-stream", // decided by the NUL count
}

// Handler converts source bytes to UTF-8.
type Handler interface {
	// Normalize returns content as UTF-8 together with the name of the
	// encoding it was read as. Binary content fails with ErrBinaryContent.
	Normalize(content []byte) (utf8Content []byte, encodingName string, err error)
}

type charsetHandler struct {
	fallback string
}

// NewHandler returns a Handler using golang.org/x/net/html/charset. fallback
// names the encoding assumed for content that is neither valid UTF-8 nor
// carries a byte order mark; empty means windows-1252.
func NewHandler(fallback string) Handler {
	if fallback == "" {
		fallback = "windows-1252"
	}
	return &charsetHandler{fallback: fallback}
}

func (h *charsetHandler) Normalize(content []byte) ([]byte, string, error) {
	if IsBinary(content) {
		return nil, "", ErrBinaryContent
	}

	enc, name, certain := charset.DetermineEncoding(content, "text/plain")
	if !certain && utf8.Valid(content) {
		return stripBOM(content), "utf-8", nil
	}
	if !certain {
		if fb, fbName := charset.Lookup(h.fallback); fb != nil {
			enc, name = fb, fbName
		}
	}
	if name == "utf-8" {
		return stripBOM(content), name, nil
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if err != nil {
		return nil, name, fmt.Errorf("decoding from %s: %w", name, err)
	}
	return stripBOM(out), name, nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}

// IsBinary reports whether content looks like binary data, judged by MIME
// sniffing of the first bytes and the share of NUL bytes.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	// UTF-16 text is full of NULs but announces itself with a BOM.
	if bytes.HasPrefix(content, []byte{0xff, 0xfe}) || bytes.HasPrefix(content, []byte{0xfe, 0xff}) {
		return false
	}

	mime := http.DetectContentType(content[:min(len(content), sniffLen)])
	mime = strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	textual := false
	for _, p := range textMIMEPrefixes {
		if strings.HasPrefix(mime, p) {
			textual = true
			break
		}
	}
	if !textual {
		return true
	}

	head := content[:min(len(content), nullCheckLen)]
	return float64(bytes.Count(head, []byte{0}))/float64(len(head)) > nullThreshold
}
