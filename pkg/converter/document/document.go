package document

// SectionKind classifies a parsed document (from its metadata).
type SectionKind string

const (
	SectionKindSection  SectionKind = "section"
	SectionKindPreface  SectionKind = "preface"
	SectionKindAppendix SectionKind = "appendix"
	SectionKindExercise SectionKind = "exercise"
)

// Document is the parsed form of one source file.
type Document struct {
	Title      string         `json:"title"`
	ShortTitle string         `json:"shortTitle,omitempty"`
	Kind       SectionKind    `json:"kind,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Blocks     []*Node        `json:"blocks"`
}

// MapBlocks replaces every block list in the tree (top level included) with
// fn's result. Extensions use it to insert, drop or merge sibling nodes,
// which Walk cannot do.
func (d *Document) MapBlocks(fn func([]*Node) []*Node) {
	d.Blocks = mapBlockLists(d.Blocks, fn)
}

func mapBlockLists(list []*Node, fn func([]*Node) []*Node) []*Node {
	for _, n := range list {
		if n == nil {
			continue
		}
		switch n.Kind {
		case KindBlockQuote, KindDiv, KindNote:
			n.Blocks = mapBlockLists(n.Blocks, fn)
		case KindFigure:
			n.Blocks = mapBlockLists(n.Blocks, fn)
			n.Caption = mapBlockLists(n.Caption, fn)
		case KindOrderedList, KindBulletList:
			for i := range n.Items {
				n.Items[i] = mapBlockLists(n.Items[i], fn)
			}
		case KindDefinitionList:
			for _, d := range n.Definitions {
				for i := range d.Definitions {
					d.Definitions[i] = mapBlockLists(d.Definitions[i], fn)
				}
			}
		case KindTable:
			n.Caption = mapBlockLists(n.Caption, fn)
			for _, r := range n.Rows {
				for _, c := range r.Cells {
					c.Blocks = mapBlockLists(c.Blocks, fn)
				}
			}
		}
	}
	return fn(list)
}
