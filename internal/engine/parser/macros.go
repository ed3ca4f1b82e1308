package parser

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	domainErrors "modernity/internal/core/errors"
	"modernity/internal/engine/stdindex"
	"modernity/internal/engine/syntax"
	"modernity/internal/shared/observability"
)

// pendingUnit is syntax still to be scanned for macro invocations. chain
// names the crate-local macros whose expansions led to it. A replay unit
// re-walks an expansion already recorded, only to follow recursion depth.
type pendingUnit struct {
	file   string
	source []byte
	roots  []*sitter.Node
	depth  int
	line   int // position reported for invocations inside fragments, 0 for files
	chain  []string
	replay bool
}

// macroPass resolves every invocation in the forest and recovers the code
// hidden inside invocations as fragments. Each crate-local macro is expanded
// at most once per version. A macro reached again from its own expansion is
// replayed one level deeper each time until the depth bound is hit.
type macroPass struct {
	parser    *Parser
	forest    *SyntaxForest
	macros    map[string]*localMacro
	expanded  map[string][]*Fragment
	replayed  map[string]bool
	overflows map[string]bool
	queue     []pendingUnit
}

func newMacroPass(p *Parser, forest *SyntaxForest, macros map[string]*localMacro) *macroPass {
	return &macroPass{
		parser:    p,
		forest:    forest,
		macros:    macros,
		expanded:  make(map[string][]*Fragment),
		replayed:  make(map[string]bool),
		overflows: make(map[string]bool),
	}
}

func (m *macroPass) run(ctx context.Context) error {
	for _, file := range m.forest.Files {
		if file.Status != FileParsed || file.Tree == nil {
			continue
		}
		m.queue = append(m.queue, pendingUnit{
			file:   file.Path,
			source: file.Source,
			roots:  []*sitter.Node{file.Tree.RootNode()},
		})
	}
	for len(m.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		unit := m.queue[0]
		m.queue = m.queue[1:]
		m.scan(unit)
	}
	return nil
}

func (m *macroPass) scan(unit pendingUnit) {
	walker := syntax.NewWalker(map[string]syntax.NodeHandler{
		"macro_invocation": func(ctx *syntax.WalkContext, node *sitter.Node) bool {
			m.invocation(unit, ctx, node)
			return true
		},
	})
	wctx := &syntax.WalkContext{Source: unit.source, Path: unit.file}
	for _, root := range unit.roots {
		walker.Walk(wctx, root)
	}
}

func (m *macroPass) invocation(unit pendingUnit, ctx *syntax.WalkContext, node *sitter.Node) {
	segs := syntax.PathSegments(unit.source, node.ChildByFieldName("macro"))
	for i, s := range segs {
		segs[i] = strings.TrimPrefix(s, "r#")
	}
	if len(segs) == 0 {
		return
	}
	name := segs[len(segs)-1]
	line := unit.line
	if line == 0 {
		line = ctx.Location(node).Line
	}

	local := m.resolveLocal(segs)
	if !unit.replay {
		inv := Invocation{Name: strings.Join(segs, "::"), File: unit.file, Line: line, Depth: unit.depth}
		switch {
		case local != nil:
			inv.Kind = MacroLocal
		default:
			if def, ok := m.resolveStd(segs); ok {
				inv.Kind = MacroStd
				inv.Since = def.Since
			}
		}
		m.forest.Invocations = append(m.forest.Invocations, inv)
	}

	next := unit.depth + 1
	if next > m.parser.opts.MaxMacroDepth {
		m.overflow(unit.file, name, line)
		return
	}

	if local != nil && slices.Contains(unit.chain, local.name) {
		m.reenter(local, unit.chain, next)
		return
	}
	if unit.replay {
		return
	}

	args := syntax.StripDelimiters(ctx.Text(syntax.ChildOfKind(node, "token_tree")))
	if strings.TrimSpace(args) != "" {
		if frag := m.parseArguments(args); frag != nil {
			m.add(frag, FragmentArguments, strings.Join(segs, "::"), unit.file, line, next, unit.chain)
		}
	}

	if local != nil {
		if _, done := m.expanded[local.name]; !done {
			m.expand(local, unit.chain, next)
		}
	}
}

// expand records the transcribed rules of a local macro as fragments
// positioned at its definition.
func (m *macroPass) expand(local *localMacro, chain []string, depth int) {
	chain = append(slices.Clone(chain), local.name)
	var frags []*Fragment
	for _, rule := range local.rules {
		if frag := m.parseExpansion(transcribe(rule)); frag != nil {
			m.add(frag, FragmentExpansion, local.name, local.file, local.line, depth, chain)
			frags = append(frags, frag)
		}
	}
	m.expanded[local.name] = frags
}

// reenter queues the recorded expansion of a recursive macro one level
// deeper. Each macro is replayed once per depth.
func (m *macroPass) reenter(local *localMacro, chain []string, depth int) {
	key := fmt.Sprintf("%s\x00%d", local.name, depth)
	if m.replayed[key] {
		return
	}
	m.replayed[key] = true
	for _, frag := range m.expanded[local.name] {
		m.queue = append(m.queue, pendingUnit{
			file:   local.file,
			source: frag.Source,
			roots:  frag.Roots,
			depth:  depth,
			line:   local.line,
			chain:  chain,
			replay: true,
		})
	}
}

func (m *macroPass) add(frag *Fragment, kind FragmentKind, macro, file string, line, depth int, chain []string) {
	frag.Kind = kind
	frag.Macro = macro
	frag.File = file
	frag.Depth = depth
	m.forest.Fragments = append(m.forest.Fragments, frag)
	m.queue = append(m.queue, pendingUnit{file: file, source: frag.Source, roots: frag.Roots, depth: depth, line: line, chain: chain})
}

func (m *macroPass) overflow(file, macro string, line int) {
	key := file + "\x00" + macro
	if m.overflows[key] {
		return
	}
	m.overflows[key] = true
	observability.MacroOverflowsTotal.Inc()
	m.forest.Issues = append(m.forest.Issues, Issue{
		Code:    domainErrors.CodeMacroExpansionOverflow,
		File:    file,
		Line:    line,
		Macro:   macro,
		Message: fmt.Sprintf("expansion deeper than %d levels truncated", m.parser.opts.MaxMacroDepth),
	})
	slog.Debug("macro expansion truncated", "file", file, "macro", macro, "line", line)
}

// resolveLocal matches bare names and crate-relative paths against the
// macro_rules! definitions of the crate. Local definitions shadow std.
func (m *macroPass) resolveLocal(segs []string) *localMacro {
	name := segs[len(segs)-1]
	if len(segs) > 1 {
		switch segs[0] {
		case "crate", "$crate", "self", "super":
		default:
			return nil
		}
	}
	return m.macros[name]
}

func (m *macroPass) resolveStd(segs []string) (defn stdindex.Definition, ok bool) {
	if m.parser.index == nil {
		return defn, false
	}
	if len(segs) > 1 {
		switch segs[0] {
		case "std", "core", "alloc", "::std", "::core", "::alloc":
		default:
			return defn, false
		}
		segs = append([]string{strings.TrimPrefix(segs[0], "::")}, segs[1:]...)
	}
	return m.parser.index.Resolve(strings.Join(segs, "::") + "!")
}

var argumentForms = []struct {
	prefix, suffix string
	container      func(root *sitter.Node) *sitter.Node
}{
	{"fn __args() { __f(", "); }", func(root *sitter.Node) *sitter.Node { return firstOfKind(root, "arguments") }},
	{"fn __args() { [", "]; }", func(root *sitter.Node) *sitter.Node { return firstOfKind(root, "array_expression") }},
	{"fn __args() {", "\n}", functionBody},
}

// parseArguments re-parses invocation arguments as call arguments, then as
// array elements, then as statements. The first clean parse wins.
func (m *macroPass) parseArguments(args string) *Fragment {
	for _, form := range argumentForms {
		if frag := m.parseWrapped(form.prefix+args+form.suffix, form.container); frag != nil {
			return frag
		}
	}
	return nil
}

// parseExpansion parses a transcribed macro body as items, falling back to
// statements.
func (m *macroPass) parseExpansion(body string) *Fragment {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if frag := m.parseWrapped(body, func(root *sitter.Node) *sitter.Node { return root }); frag != nil {
		return frag
	}
	return m.parseWrapped("fn __expand() {"+body+"\n}", functionBody)
}

func (m *macroPass) parseWrapped(text string, container func(*sitter.Node) *sitter.Node) *Fragment {
	source := []byte(text)
	tree := m.parser.pool.Parse(source)
	if tree == nil {
		return nil
	}
	root := tree.RootNode()
	if root.HasError() {
		tree.Close()
		return nil
	}
	holder := container(root)
	if holder == nil {
		tree.Close()
		return nil
	}
	var roots []*sitter.Node
	for i := uint(0); i < holder.ChildCount(); i++ {
		if child := holder.Child(i); child.IsNamed() {
			roots = append(roots, child)
		}
	}
	if len(roots) == 0 {
		tree.Close()
		return nil
	}
	return &Fragment{Source: source, Tree: tree, Roots: roots}
}

func functionBody(root *sitter.Node) *sitter.Node {
	fn := syntax.ChildOfKind(root, "function_item")
	if fn == nil {
		return nil
	}
	return fn.ChildByFieldName("body")
}

func firstOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == kind {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstOfKind(node.Child(i), kind); found != nil {
			return found
		}
	}
	return nil
}
