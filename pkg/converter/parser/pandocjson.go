package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/stackvity/book-converter/pkg/converter/document"
)

// Metadata keys read from the document header.
const (
	MetaTitle      = "title"
	MetaShortTitle = "shorttitle"
	MetaKind       = "kind"
)

type pandocDoc struct {
	APIVersion []int                      `json:"pandoc-api-version"`
	Meta       map[string]json.RawMessage `json:"meta"`
	Blocks     json.RawMessage            `json:"blocks"`
}

type tagged struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c"`
}

// Decode reads a pandoc JSON AST (`pandoc -t json`) for the source file path
// and returns the document. A missing or empty title is a ConversionError.
func Decode(r io.Reader, path string) (*document.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Errorf(path, err, "reading parser output")
	}
	return DecodeBytes(data, path)
}

// DecodeBytes is Decode for an in-memory AST.
func DecodeBytes(data []byte, path string) (*document.Document, error) {
	var raw pandocDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, Errorf(path, err, "malformed AST")
	}
	if len(raw.APIVersion) == 0 || raw.APIVersion[0] != 1 {
		return nil, Errorf(path, nil, "unsupported pandoc API version %v", raw.APIVersion)
	}

	blocks, err := decodeList(raw.Blocks)
	if err != nil {
		return nil, Errorf(path, err, "malformed AST")
	}

	meta := make(map[string]any, len(raw.Meta))
	for k, v := range raw.Meta {
		val, err := decodeMeta(v)
		if err != nil {
			return nil, Errorf(path, err, "malformed metadata field %q", k)
		}
		meta[k] = val
	}

	doc := &document.Document{Meta: meta, Blocks: blocks, Kind: document.SectionKindSection}
	doc.Title, _ = meta[MetaTitle].(string)
	doc.Title = strings.TrimSpace(doc.Title)
	if doc.Title == "" {
		return nil, Errorf(path, nil, "missing title metadata")
	}
	for _, key := range []string{MetaShortTitle, "short-title"} {
		if s, ok := meta[key].(string); ok && s != "" {
			doc.ShortTitle = s
			break
		}
	}
	if k, ok := meta[MetaKind].(string); ok && k != "" {
		doc.Kind = document.SectionKind(strings.ToLower(k))
	}
	return doc, nil
}

// unpack decodes a JSON array positionally into dst. Nil entries are skipped.
func unpack(raw json.RawMessage, dst ...any) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return err
	}
	if len(parts) != len(dst) {
		return fmt.Errorf("expected %d fields, got %d", len(dst), len(parts))
	}
	for i, p := range parts {
		if dst[i] == nil {
			continue
		}
		if err := json.Unmarshal(p, dst[i]); err != nil {
			return err
		}
	}
	return nil
}

func decodeAttr(raw json.RawMessage) (*document.Attr, error) {
	var (
		id      string
		classes []string
		kvs     [][2]string
	)
	if err := unpack(raw, &id, &classes, &kvs); err != nil {
		return nil, fmt.Errorf("attr: %w", err)
	}
	if id == "" && len(classes) == 0 && len(kvs) == 0 {
		return nil, nil
	}
	a := &document.Attr{ID: id, Classes: classes}
	if len(kvs) > 0 {
		a.Attributes = make(map[string]string, len(kvs))
		for _, kv := range kvs {
			a.Attributes[kv[0]] = kv[1]
		}
	}
	return a, nil
}

func decodeList(raw json.RawMessage) ([]*document.Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]*document.Node, 0, len(items))
	for _, it := range items {
		n, err := decodeNode(it)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func decodeLists(raw json.RawMessage) ([][]*document.Node, error) {
	var lists []json.RawMessage
	if err := json.Unmarshal(raw, &lists); err != nil {
		return nil, err
	}
	out := make([][]*document.Node, 0, len(lists))
	for _, l := range lists {
		nodes, err := decodeList(l)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes)
	}
	return out, nil
}

func decodeNode(raw json.RawMessage) (*document.Node, error) {
	var tg tagged
	if err := json.Unmarshal(raw, &tg); err != nil {
		return nil, err
	}
	if tg.T == "" {
		return nil, fmt.Errorf("node without type tag")
	}
	n := &document.Node{Kind: document.Kind(tg.T)}
	var err error

	switch n.Kind {
	case document.KindPlain, document.KindPara,
		document.KindEmph, document.KindUnderline, document.KindStrong, document.KindStrikeout,
		document.KindSuperscript, document.KindSubscript, document.KindSmallCaps:
		n.Inlines, err = decodeList(tg.C)
	case document.KindBlockQuote, document.KindNote:
		n.Blocks, err = decodeList(tg.C)
	case document.KindLineBlock, document.KindBulletList:
		n.Items, err = decodeLists(tg.C)
	case document.KindCodeBlock, document.KindCode:
		var attr json.RawMessage
		if err = unpack(tg.C, &attr, &n.Text); err == nil {
			n.Attr, err = decodeAttr(attr)
		}
	case document.KindRawBlock, document.KindRawInline:
		err = unpack(tg.C, &n.Format, &n.Text)
	case document.KindOrderedList:
		err = decodeOrderedList(n, tg.C)
	case document.KindDefinitionList:
		err = decodeDefinitionList(n, tg.C)
	case document.KindHeader:
		var attr, inl json.RawMessage
		if err = unpack(tg.C, &n.Level, &attr, &inl); err == nil {
			n.Attr, n.Inlines, err = attrAndList(attr, inl)
		}
	case document.KindHorizontalRule, document.KindSpace, document.KindSoftBreak, document.KindLineBreak:
	case document.KindTable:
		err = decodeTable(n, tg.C)
	case document.KindFigure:
		var attr, caption, blk json.RawMessage
		if err = unpack(tg.C, &attr, &caption, &blk); err != nil {
			break
		}
		if n.Caption, err = decodeCaption(caption); err != nil {
			break
		}
		n.Attr, n.Blocks, err = attrAndList(attr, blk)
	case document.KindDiv:
		var attr, blk json.RawMessage
		if err = unpack(tg.C, &attr, &blk); err == nil {
			n.Attr, n.Blocks, err = attrAndList(attr, blk)
		}
	case document.KindSpan:
		var attr, inl json.RawMessage
		if err = unpack(tg.C, &attr, &inl); err == nil {
			n.Attr, n.Inlines, err = attrAndList(attr, inl)
		}
	case document.KindStr:
		err = json.Unmarshal(tg.C, &n.Text)
	case document.KindQuoted:
		var q tagged
		var inl json.RawMessage
		if err = unpack(tg.C, &q, &inl); err == nil {
			n.Format = q.T
			n.Inlines, err = decodeList(inl)
		}
	case document.KindCite:
		var inl json.RawMessage
		if err = unpack(tg.C, nil, &inl); err == nil {
			n.Inlines, err = decodeList(inl)
		}
	case document.KindMath:
		var mt tagged
		if err = unpack(tg.C, &mt, &n.Text); err == nil {
			n.Format = mt.T
		}
	case document.KindLink, document.KindImage:
		var attr, inl json.RawMessage
		var target [2]string
		if err = unpack(tg.C, &attr, &inl, &target); err == nil {
			n.Target, n.Title = target[0], target[1]
			n.Attr, n.Inlines, err = attrAndList(attr, inl)
		}
	default:
		// Kept opaque; the traverser treats it as a leaf.
		if len(tg.C) > 0 {
			n.SetData("pandoc", tg.C)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tg.T, err)
	}
	return n, nil
}

func attrAndList(attr, list json.RawMessage) (*document.Attr, []*document.Node, error) {
	a, err := decodeAttr(attr)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := decodeList(list)
	return a, nodes, err
}

func decodeOrderedList(n *document.Node, raw json.RawMessage) error {
	var listAttrs, items json.RawMessage
	if err := unpack(raw, &listAttrs, &items); err != nil {
		return err
	}
	var style tagged
	if err := unpack(listAttrs, &n.Start, &style, nil); err != nil {
		return err
	}
	n.Format = style.T
	var err error
	n.Items, err = decodeLists(items)
	return err
}

func decodeDefinitionList(n *document.Node, raw json.RawMessage) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		var term, defs json.RawMessage
		if err := unpack(e, &term, &defs); err != nil {
			return err
		}
		d := &document.Definition{}
		var err error
		if d.Term, err = decodeList(term); err != nil {
			return err
		}
		if d.Definitions, err = decodeLists(defs); err != nil {
			return err
		}
		n.Definitions = append(n.Definitions, d)
	}
	return nil
}

func decodeCaption(raw json.RawMessage) ([]*document.Node, error) {
	var blk json.RawMessage
	if err := unpack(raw, nil, &blk); err != nil {
		return nil, fmt.Errorf("caption: %w", err)
	}
	return decodeList(blk)
}

func decodeTable(n *document.Node, raw json.RawMessage) error {
	var attr, caption, head, bodies, foot json.RawMessage
	if err := unpack(raw, &attr, &caption, nil, &head, &bodies, &foot); err != nil {
		return err
	}
	var err error
	if n.Attr, err = decodeAttr(attr); err != nil {
		return err
	}
	if n.Caption, err = decodeCaption(caption); err != nil {
		return err
	}

	var headRows json.RawMessage
	if err := unpack(head, nil, &headRows); err != nil {
		return fmt.Errorf("table head: %w", err)
	}
	if err := appendRows(n, headRows, true); err != nil {
		return err
	}

	var bodyList []json.RawMessage
	if err := json.Unmarshal(bodies, &bodyList); err != nil {
		return err
	}
	for _, b := range bodyList {
		var inner, rows json.RawMessage
		if err := unpack(b, nil, nil, &inner, &rows); err != nil {
			return fmt.Errorf("table body: %w", err)
		}
		if err := appendRows(n, inner, true); err != nil {
			return err
		}
		if err := appendRows(n, rows, false); err != nil {
			return err
		}
	}

	var footRows json.RawMessage
	if err := unpack(foot, nil, &footRows); err != nil {
		return fmt.Errorf("table foot: %w", err)
	}
	return appendRows(n, footRows, false)
}

func appendRows(n *document.Node, raw json.RawMessage, header bool) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		var cells []json.RawMessage
		if err := unpack(r, nil, &cells); err != nil {
			return fmt.Errorf("row: %w", err)
		}
		row := &document.Row{Header: header}
		for _, c := range cells {
			var (
				align  tagged
				rs, cs int
				blk    json.RawMessage
			)
			if err := unpack(c, nil, &align, &rs, &cs, &blk); err != nil {
				return fmt.Errorf("cell: %w", err)
			}
			nodes, err := decodeList(blk)
			if err != nil {
				return err
			}
			row.Cells = append(row.Cells, &document.Cell{Align: align.T, RowSpan: rs, ColSpan: cs, Blocks: nodes})
		}
		n.Rows = append(n.Rows, row)
	}
	return nil
}

func decodeMeta(raw json.RawMessage) (any, error) {
	var tg tagged
	if err := json.Unmarshal(raw, &tg); err != nil {
		return nil, err
	}
	switch tg.T {
	case "MetaMap":
		var m map[string]json.RawMessage
		if err := json.Unmarshal(tg.C, &m); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			val, err := decodeMeta(v)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	case "MetaList":
		var items []json.RawMessage
		if err := json.Unmarshal(tg.C, &items); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			val, err := decodeMeta(it)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case "MetaBool":
		var b bool
		err := json.Unmarshal(tg.C, &b)
		return b, err
	case "MetaString":
		var s string
		err := json.Unmarshal(tg.C, &s)
		return s, err
	case "MetaInlines":
		nodes, err := decodeList(tg.C)
		if err != nil {
			return nil, err
		}
		return document.PlainText(nodes), nil
	case "MetaBlocks":
		nodes, err := decodeList(tg.C)
		if err != nil {
			return nil, err
		}
		paras := make([]string, 0, len(nodes))
		for _, n := range nodes {
			paras = append(paras, document.PlainText([]*document.Node{n}))
		}
		return strings.Join(paras, "\n"), nil
	default:
		return nil, fmt.Errorf("unknown metadata value %q", tg.T)
	}
}
