package document

import (
	"errors"
	"log/slog"
	"sync"
)

// SkipChildren is returned by a VisitFunc to skip the descendants of the
// node being visited. Siblings and the rest of the tree are still visited.
var SkipChildren = errors.New("skip children")

// VisitFunc is called for every node before its children. parent is nil for
// top-level nodes.
type VisitFunc func(node, parent *Node) error

// Traverser walks node trees and reports kinds it has no children rule for.
type Traverser struct {
	logger *slog.Logger

	mu     sync.Mutex
	warned map[Kind]bool
}

// NewTraverser returns a Traverser logging through handler. A nil handler
// uses the default slog handler.
func NewTraverser(handler slog.Handler) *Traverser {
	var logger *slog.Logger
	if handler == nil {
		logger = slog.Default()
	} else {
		logger = slog.New(handler)
	}
	return &Traverser{
		logger: logger.With(slog.String("component", "traverser")),
		warned: make(map[Kind]bool),
	}
}

var defaultTraverser = NewTraverser(nil)

// Walk visits nodes with the package default Traverser.
func Walk(nodes []*Node, fn VisitFunc) error {
	return defaultTraverser.Walk(nodes, fn)
}

// Walk visits nodes and their descendants in document order. An error other
// than SkipChildren stops the walk and is returned.
func (t *Traverser) Walk(nodes []*Node, fn VisitFunc) error {
	return t.walkList(nodes, nil, fn)
}

func (t *Traverser) walkList(nodes []*Node, parent *Node, fn VisitFunc) error {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := t.walkNode(n, parent, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *Traverser) walkNode(n, parent *Node, fn VisitFunc) error {
	if err := fn(n, parent); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	children, known := ChildrenOf(n)
	if !known {
		t.warnUnknown(n.Kind)
		return nil
	}
	for _, list := range children {
		if err := t.walkList(list, n, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *Traverser) warnUnknown(k Kind) {
	t.mu.Lock()
	seen := t.warned[k]
	t.warned[k] = true
	t.mu.Unlock()
	if !seen {
		t.logger.Warn("Unknown node kind treated as leaf", slog.String("kind", string(k)))
	}
}
