package syntax

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node. Returning true tells the walker the handler
// has already visited the children.
type NodeHandler func(ctx *WalkContext, node *sitter.Node) bool

// WalkContext carries the source being walked and position helpers.
type WalkContext struct {
	Source []byte
	Path   string
}

// Walker walks a syntax tree and dispatches node handlers by kind. A handler
// registered under the empty kind runs for every node without a dedicated
// handler.
type Walker struct {
	handlers map[string]NodeHandler
}

func NewWalker(handlers map[string]NodeHandler) *Walker {
	return &Walker{handlers: handlers}
}

func (w *Walker) Walk(ctx *WalkContext, node *sitter.Node) {
	if node == nil {
		return
	}

	stop := false
	handler, ok := w.handlers[node.Kind()]
	if !ok {
		handler, ok = w.handlers[""]
	}
	if ok {
		stop = handler(ctx, node)
	}

	if !stop {
		w.WalkChildren(ctx, node)
	}
}

// WalkChildren walks every child of node. Handlers that need to wrap their
// subtree (enter/leave bookkeeping) call it and return true.
func (w *Walker) WalkChildren(ctx *WalkContext, node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		w.Walk(ctx, node.Child(i))
	}
}

func (c *WalkContext) Text(node *sitter.Node) string {
	return Text(c.Source, node)
}

func (c *WalkContext) Location(node *sitter.Node) Location {
	return Location{
		File:   c.Path,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}

// Location is a 1-based source position.
type Location struct {
	File   string
	Line   int
	Column int
}
