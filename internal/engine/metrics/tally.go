package metrics

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"modernity/internal/engine/parser"
	"modernity/internal/engine/syntax"
)

var literalKinds = map[string]bool{
	"integer_literal":    true,
	"float_literal":      true,
	"string_literal":     true,
	"raw_string_literal": true,
	"char_literal":       true,
	"boolean_literal":    true,
}

var blockExprKinds = map[string]bool{
	"unsafe_block":     true,
	"async_block":      true,
	"const_block":      true,
	"macro_invocation": true,
}

func isExpression(kind string) bool {
	return strings.HasSuffix(kind, "_expression") || literalKinds[kind] || blockExprKinds[kind]
}

// tally holds the raw syntax counters of a version. Paths maps every
// candidate std path, as written, to its number of occurrences.
type tally struct {
	exprs         int
	unsafeExprs   int
	tryOps        int
	unwraps       int
	legacyTry     int
	fns           int
	asyncFns      int
	implTraitFns  int
	dynTraits     int
	letElse       int
	constGenerics int
	closures      int
	paths         map[string]int
}

func newTally() *tally {
	return &tally{paths: make(map[string]int)}
}

func (t *tally) merge(o *tally) {
	t.exprs += o.exprs
	t.unsafeExprs += o.unsafeExprs
	t.tryOps += o.tryOps
	t.unwraps += o.unwraps
	t.legacyTry += o.legacyTry
	t.fns += o.fns
	t.asyncFns += o.asyncFns
	t.implTraitFns += o.implTraitFns
	t.dynTraits += o.dynTraits
	t.letElse += o.letElse
	t.constGenerics += o.constGenerics
	t.closures += o.closures
	for k, v := range o.paths {
		t.paths[k] += v
	}
}

// collector walks one unit. unsafeDepth counts the enclosing unsafe blocks and
// unsafe fn bodies.
type collector struct {
	t           *tally
	unsafeDepth int
	walker      *syntax.Walker
}

func collect(unit parser.Unit) *tally {
	c := &collector{t: newTally()}
	c.walker = syntax.NewWalker(map[string]syntax.NodeHandler{
		"":                        c.visit,
		"unsafe_block":            c.unsafeBlock,
		"function_item":           c.function,
		"function_signature_item": c.function,
		"call_expression":         c.call,
		"try_expression":          c.tryExpr,
		"closure_expression":      c.closure,
		"macro_invocation":        c.macro,
		"let_declaration":         c.letDecl,
		"dynamic_type":            c.dynType,
		"const_parameter":         c.constParam,
		"use_declaration":         c.useDecl,
		"scoped_identifier":       c.scopedPath,
		"scoped_type_identifier":  c.scopedPath,
		"type_identifier":         c.typeIdent,
		"attribute_item":          skip,
		"inner_attribute_item":    skip,
		"macro_definition":        skip,
	})
	ctx := &syntax.WalkContext{Source: unit.Source, Path: unit.Path}
	for _, root := range unit.Roots {
		c.walker.Walk(ctx, root)
	}
	return c.t
}

func skip(*syntax.WalkContext, *sitter.Node) bool { return true }

func (c *collector) countExpr() {
	c.t.exprs++
	if c.unsafeDepth > 0 {
		c.t.unsafeExprs++
	}
}

func (c *collector) visit(_ *syntax.WalkContext, node *sitter.Node) bool {
	if isExpression(node.Kind()) {
		c.countExpr()
	}
	return false
}

// unsafeBlock counts the block itself at the outer depth.
func (c *collector) unsafeBlock(ctx *syntax.WalkContext, node *sitter.Node) bool {
	c.countExpr()
	c.unsafeDepth++
	c.walker.WalkChildren(ctx, node)
	c.unsafeDepth--
	return true
}

func (c *collector) function(ctx *syntax.WalkContext, node *sitter.Node) bool {
	c.t.fns++
	mods := syntax.ChildOfKind(node, "function_modifiers")
	if mods != nil && syntax.HasChildKind(mods, "async") {
		c.t.asyncFns++
	}
	if syntax.Contains(node.ChildByFieldName("parameters"), "abstract_type") ||
		syntax.Contains(node.ChildByFieldName("return_type"), "abstract_type") {
		c.t.implTraitFns++
	}
	if mods == nil || !syntax.HasChildKind(mods, "unsafe") {
		return false
	}
	c.unsafeDepth++
	c.walker.WalkChildren(ctx, node)
	c.unsafeDepth--
	return true
}

func (c *collector) call(ctx *syntax.WalkContext, node *sitter.Node) bool {
	c.countExpr()
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	switch fn.Kind() {
	case "field_expression":
		switch ctx.Text(fn.ChildByFieldName("field")) {
		case "unwrap", "expect":
			c.t.unwraps++
		}
	case "identifier":
		c.t.paths[ctx.Text(fn)]++
	}
	return false
}

func (c *collector) tryExpr(*syntax.WalkContext, *sitter.Node) bool {
	c.countExpr()
	c.t.tryOps++
	return false
}

func (c *collector) closure(*syntax.WalkContext, *sitter.Node) bool {
	c.countExpr()
	c.t.closures++
	return false
}

// macro counts the invocation. Its token tree is covered by fragments.
func (c *collector) macro(ctx *syntax.WalkContext, node *sitter.Node) bool {
	c.countExpr()
	segs := syntax.PathSegments(ctx.Source, node.ChildByFieldName("macro"))
	if len(segs) > 0 && strings.TrimPrefix(segs[len(segs)-1], "r#") == "try" {
		c.t.legacyTry++
	}
	return true
}

func (c *collector) letDecl(_ *syntax.WalkContext, node *sitter.Node) bool {
	if node.ChildByFieldName("alternative") != nil {
		c.t.letElse++
	}
	return false
}

func (c *collector) dynType(*syntax.WalkContext, *sitter.Node) bool {
	c.t.dynTraits++
	return false
}

func (c *collector) constParam(*syntax.WalkContext, *sitter.Node) bool {
	c.t.constGenerics++
	return false
}

func (c *collector) scopedPath(ctx *syntax.WalkContext, node *sitter.Node) bool {
	c.addPath(syntax.PathSegments(ctx.Source, node))
	// Generic arguments inside the path still hold types.
	if args := syntax.ChildOfKind(node, "type_arguments"); args != nil {
		c.walker.WalkChildren(ctx, args)
	}
	return true
}

func (c *collector) typeIdent(ctx *syntax.WalkContext, node *sitter.Node) bool {
	c.t.paths[ctx.Text(node)]++
	return false
}

func (c *collector) useDecl(ctx *syntax.WalkContext, node *sitter.Node) bool {
	for _, path := range usePaths(ctx.Source, node.ChildByFieldName("argument"), nil) {
		c.addPath(path)
	}
	return true
}

func (c *collector) addPath(segs []string) {
	if len(segs) == 0 {
		return
	}
	switch segs[0] {
	case "crate", "self", "super", "Self", "$crate":
		return
	}
	c.t.paths[strings.Join(segs, "::")]++
}

// usePaths flattens a use tree into the full paths it names. Globs name
// their parent module.
func usePaths(source []byte, node *sitter.Node, prefix []string) [][]string {
	if node == nil {
		return nil
	}
	join := func(segs []string) []string {
		out := make([]string, 0, len(prefix)+len(segs))
		return append(append(out, prefix...), segs...)
	}
	switch node.Kind() {
	case "use_as_clause":
		return usePaths(source, node.ChildByFieldName("path"), prefix)
	case "use_wildcard":
		inner := syntax.FirstNamedChild(node)
		if inner == nil {
			return [][]string{prefix}
		}
		return [][]string{join(syntax.PathSegments(source, inner))}
	case "scoped_use_list":
		base := join(syntax.PathSegments(source, node.ChildByFieldName("path")))
		return usePaths(source, node.ChildByFieldName("list"), base)
	case "use_list":
		var out [][]string
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if !child.IsNamed() {
				continue
			}
			if child.Kind() == "self" {
				out = append(out, prefix)
				continue
			}
			out = append(out, usePaths(source, child, prefix)...)
		}
		return out
	default:
		return [][]string{join(syntax.PathSegments(source, node))}
	}
}
