// Package document holds the typed node tree produced by a parser for one
// source file, and the traversal engine extensions use to inspect and
// rewrite it.
package document

import "strings"

// Kind is the type tag of a Node. Tags follow the pandoc AST names so that
// decoded trees keep the vocabulary authors already know.
type Kind string

// Block kinds.
const (
	KindPlain          Kind = "Plain"
	KindPara           Kind = "Para"
	KindLineBlock      Kind = "LineBlock"
	KindCodeBlock      Kind = "CodeBlock"
	KindRawBlock       Kind = "RawBlock"
	KindBlockQuote     Kind = "BlockQuote"
	KindOrderedList    Kind = "OrderedList"
	KindBulletList     Kind = "BulletList"
	KindDefinitionList Kind = "DefinitionList"
	KindHeader         Kind = "Header"
	KindHorizontalRule Kind = "HorizontalRule"
	KindTable          Kind = "Table"
	KindFigure         Kind = "Figure"
	KindDiv            Kind = "Div"
)

// Inline kinds.
const (
	KindStr         Kind = "Str"
	KindEmph        Kind = "Emph"
	KindUnderline   Kind = "Underline"
	KindStrong      Kind = "Strong"
	KindStrikeout   Kind = "Strikeout"
	KindSuperscript Kind = "Superscript"
	KindSubscript   Kind = "Subscript"
	KindSmallCaps   Kind = "SmallCaps"
	KindQuoted      Kind = "Quoted"
	KindCite        Kind = "Cite"
	KindCode        Kind = "Code"
	KindSpace       Kind = "Space"
	KindSoftBreak   Kind = "SoftBreak"
	KindLineBreak   Kind = "LineBreak"
	KindMath        Kind = "Math"
	KindRawInline   Kind = "RawInline"
	KindLink        Kind = "Link"
	KindImage       Kind = "Image"
	KindNote        Kind = "Note"
	KindSpan        Kind = "Span"
)

// Attr is the identifier, classes and key/value attributes attached to a node.
type Attr struct {
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// HasClass reports whether the attribute set carries class c.
func (a *Attr) HasClass(c string) bool {
	if a == nil {
		return false
	}
	for _, cls := range a.Classes {
		if cls == c {
			return true
		}
	}
	return false
}

// Get returns the value of attribute key, or "".
func (a *Attr) Get(key string) string {
	if a == nil || a.Attributes == nil {
		return ""
	}
	return a.Attributes[key]
}

// Node is one element of a document tree. Which fields are meaningful
// depends on Kind; the children accessor table in children.go is the single
// place that knows where each kind keeps its children.
type Node struct {
	Kind Kind  `json:"t"`
	Attr *Attr `json:"attr,omitempty"`

	// Text carries the literal payload of Str, Code, CodeBlock, Math and raw nodes.
	Text string `json:"text,omitempty"`
	// Format is the raw format (RawBlock, RawInline), the math type (Math),
	// the quote type (Quoted) or the list style (OrderedList).
	Format string `json:"format,omitempty"`
	Level  int    `json:"level,omitempty"`
	Start  int    `json:"start,omitempty"`
	Target string `json:"target,omitempty"`
	Title  string `json:"title,omitempty"`

	Inlines     []*Node       `json:"inlines,omitempty"`
	Blocks      []*Node       `json:"blocks,omitempty"`
	Items       [][]*Node     `json:"items,omitempty"`
	Definitions []*Definition `json:"definitions,omitempty"`
	Caption     []*Node       `json:"caption,omitempty"`
	Rows        []*Row        `json:"rows,omitempty"`

	// Data holds annotations added by extensions (numbers, anchors, ...).
	Data map[string]any `json:"data,omitempty"`
}

// Definition is one term of a DefinitionList with its definitions.
type Definition struct {
	Term        []*Node   `json:"term"`
	Definitions [][]*Node `json:"definitions"`
}

// Row is a table row. Header rows come from the table head.
type Row struct {
	Header bool    `json:"header,omitempty"`
	Cells  []*Cell `json:"cells"`
}

// Cell is a table cell.
type Cell struct {
	Align   string  `json:"align,omitempty"`
	RowSpan int     `json:"rowSpan,omitempty"`
	ColSpan int     `json:"colSpan,omitempty"`
	Blocks  []*Node `json:"blocks"`
}

// SetData stores an extension annotation on the node.
func (n *Node) SetData(key string, value any) {
	if n.Data == nil {
		n.Data = make(map[string]any)
	}
	n.Data[key] = value
}

// Str builds a text run.
func Str(s string) *Node { return &Node{Kind: KindStr, Text: s} }

// Space builds an inter-word space.
func Space() *Node { return &Node{Kind: KindSpace} }

// PlainText flattens the textual content of nodes, rendering spaces and
// breaks as single blanks. Notes are left out.
func PlainText(nodes []*Node) string {
	var b strings.Builder
	_ = Walk(nodes, func(n, _ *Node) error {
		switch n.Kind {
		case KindStr, KindCode, KindMath:
			b.WriteString(n.Text)
		case KindSpace, KindSoftBreak, KindLineBreak:
			b.WriteByte(' ')
		case KindNote:
			return SkipChildren
		}
		return nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
