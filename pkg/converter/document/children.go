package document

import "sync"

// ChildrenFunc returns the child lists of a node, in document order. Each
// inner slice is visited in turn; nil entries are allowed.
type ChildrenFunc func(n *Node) [][]*Node

var (
	childrenMu    sync.RWMutex
	childrenRules = map[Kind]ChildrenFunc{}
)

func leaf(*Node) [][]*Node { return nil }

func inlines(n *Node) [][]*Node { return [][]*Node{n.Inlines} }

func blocks(n *Node) [][]*Node { return [][]*Node{n.Blocks} }

func items(n *Node) [][]*Node { return n.Items }

func definitions(n *Node) [][]*Node {
	out := make([][]*Node, 0, len(n.Definitions)*2)
	for _, d := range n.Definitions {
		out = append(out, d.Term)
		out = append(out, d.Definitions...)
	}
	return out
}

func table(n *Node) [][]*Node {
	out := [][]*Node{n.Caption}
	for _, r := range n.Rows {
		for _, c := range r.Cells {
			out = append(out, c.Blocks)
		}
	}
	return out
}

func figure(n *Node) [][]*Node { return [][]*Node{n.Caption, n.Blocks} }

// Links and images keep their description in Inlines.
func init() {
	for k, fn := range map[Kind]ChildrenFunc{
		KindPlain:          inlines,
		KindPara:           inlines,
		KindLineBlock:      items,
		KindCodeBlock:      leaf,
		KindRawBlock:       leaf,
		KindBlockQuote:     blocks,
		KindOrderedList:    items,
		KindBulletList:     items,
		KindDefinitionList: definitions,
		KindHeader:         inlines,
		KindHorizontalRule: leaf,
		KindTable:          table,
		KindFigure:         figure,
		KindDiv:            blocks,

		KindStr:         leaf,
		KindEmph:        inlines,
		KindUnderline:   inlines,
		KindStrong:      inlines,
		KindStrikeout:   inlines,
		KindSuperscript: inlines,
		KindSubscript:   inlines,
		KindSmallCaps:   inlines,
		KindQuoted:      inlines,
		KindCite:        inlines,
		KindCode:        leaf,
		KindSpace:       leaf,
		KindSoftBreak:   leaf,
		KindLineBreak:   leaf,
		KindMath:        leaf,
		KindRawInline:   leaf,
		KindLink:        inlines,
		KindImage:       inlines,
		KindNote:        blocks,
		KindSpan:        inlines,
	} {
		childrenRules[k] = fn
	}
}

// RegisterChildren installs or replaces the children accessor for kind.
func RegisterChildren(kind Kind, fn ChildrenFunc) {
	if fn == nil {
		fn = leaf
	}
	childrenMu.Lock()
	childrenRules[kind] = fn
	childrenMu.Unlock()
}

// ChildrenOf returns the child lists of n and whether its kind is known.
func ChildrenOf(n *Node) ([][]*Node, bool) {
	childrenMu.RLock()
	fn, ok := childrenRules[n.Kind]
	childrenMu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(n), true
}
