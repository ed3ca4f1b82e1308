package stdindex

import (
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"modernity/internal/engine/syntax"
)

var sinceRe = regexp.MustCompile(`since\s*=\s*"([^"]*)"`)

// attrs is what the builder needs from the attributes preceding an item.
type attrs struct {
	stable      bool
	since       string
	macroExport bool
}

// builder walks one expanded crate and records its stable items and use
// declarations into an Index.
type builder struct {
	ix     *Index
	crate  string
	source []byte

	itemCount  int
	errorCount int
}

func (b *builder) build(root *sitter.Node) {
	b.walkItems(root, []string{b.crate})
}

// walkItems visits an item list (source_file or declaration_list) collecting
// the attribute items that precede each entry.
func (b *builder) walkItems(list *sitter.Node, path []string) {
	var pending []*sitter.Node
	for i := uint(0); i < list.ChildCount(); i++ {
		child := list.Child(i)
		switch child.Kind() {
		case "attribute_item":
			pending = append(pending, child)
			continue
		case "line_comment", "block_comment", "inner_attribute_item", "{", "}", ";":
			continue
		case "ERROR":
			b.errorCount++
			pending = nil
			continue
		}
		if child.IsNamed() {
			b.itemCount++
			b.item(child, b.parseAttrs(pending), path)
		}
		pending = nil
	}
}

func (b *builder) parseAttrs(nodes []*sitter.Node) attrs {
	var out attrs
	for _, n := range nodes {
		attr := syntax.ChildOfKind(n, "attribute")
		if attr == nil {
			continue
		}
		switch syntax.Text(b.source, syntax.FirstNamedChild(attr)) {
		case "stable":
			args := syntax.Text(b.source, attr.ChildByFieldName("arguments"))
			if m := sinceRe.FindStringSubmatch(args); m != nil {
				out.stable = true
				out.since = m[1]
			}
		case "macro_export":
			out.macroExport = true
		}
	}
	return out
}

func (b *builder) isPublic(node *sitter.Node) bool {
	vis := syntax.ChildOfKind(node, "visibility_modifier")
	return vis != nil && strings.TrimSpace(syntax.Text(b.source, vis)) == "pub"
}

func (b *builder) name(node *sitter.Node) string {
	return syntax.Text(b.source, node.ChildByFieldName("name"))
}

func (b *builder) record(path []string, name string, a attrs, public bool, kind string) {
	if !a.stable || name == "" {
		return
	}
	it := b.ix.ensure(concat(path, []string{name}))
	it.Since = a.since
	it.Public = public
	it.Kind = kind
}

func (b *builder) item(node *sitter.Node, a attrs, path []string) {
	switch kind := node.Kind(); kind {
	case "function_item", "function_signature_item", "const_item", "static_item",
		"struct_item", "union_item", "type_item":
		b.record(path, b.name(node), a, b.isPublic(node), strings.TrimSuffix(kind, "_item"))

	case "enum_item":
		name := b.name(node)
		b.record(path, name, a, b.isPublic(node), "enum")
		if body := node.ChildByFieldName("body"); body != nil {
			b.members(body, concat(path, []string{name}), "variant")
		}

	case "trait_item":
		name := b.name(node)
		b.record(path, name, a, b.isPublic(node), "trait")
		if body := node.ChildByFieldName("body"); body != nil {
			b.members(body, concat(path, []string{name}), "")
		}

	case "impl_item":
		if node.ChildByFieldName("trait") != nil {
			return
		}
		self := b.selfPath(node.ChildByFieldName("type"))
		if len(self) == 0 {
			return
		}
		if body := node.ChildByFieldName("body"); body != nil {
			b.walkImpl(body, concat(path, self))
		}

	case "mod_item":
		body := node.ChildByFieldName("body")
		if body == nil {
			return
		}
		name := b.name(node)
		b.record(path, name, a, b.isPublic(node), "mod")
		b.walkItems(body, concat(path, []string{name}))

	case "foreign_mod_item":
		if body := node.ChildByFieldName("body"); body != nil {
			b.walkItems(body, path)
		}

	case "macro_definition":
		name := b.name(node)
		if name == "" {
			return
		}
		at := path
		if a.macroExport {
			at = []string{b.crate}
		}
		b.record(at, name+"!", a, a.macroExport || b.isPublic(node), "macro")

	case "use_declaration":
		b.useTree(node.ChildByFieldName("argument"), nil, path, a, b.isPublic(node))
	}
}

// members records enum variants and trait items, which inherit the owner's
// visibility.
func (b *builder) members(list *sitter.Node, owner []string, kind string) {
	var pending []*sitter.Node
	for i := uint(0); i < list.ChildCount(); i++ {
		child := list.Child(i)
		switch child.Kind() {
		case "attribute_item":
			pending = append(pending, child)
			continue
		case "enum_variant", "function_item", "function_signature_item", "const_item", "associated_type":
			k := kind
			if k == "" {
				k = strings.TrimSuffix(child.Kind(), "_item")
			}
			b.record(owner, b.name(child), b.parseAttrs(pending), true, k)
		}
		if child.IsNamed() {
			pending = nil
		}
	}
}

func (b *builder) walkImpl(body *sitter.Node, owner []string) {
	var pending []*sitter.Node
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		switch child.Kind() {
		case "attribute_item":
			pending = append(pending, child)
			continue
		case "function_item", "const_item", "type_item":
			b.record(owner, b.name(child), b.parseAttrs(pending), b.isPublic(child), strings.TrimSuffix(child.Kind(), "_item"))
		}
		if child.IsNamed() {
			pending = nil
		}
	}
}

func (b *builder) selfPath(ty *sitter.Node) []string {
	if ty == nil {
		return nil
	}
	switch ty.Kind() {
	case "type_identifier", "primitive_type", "scoped_type_identifier", "generic_type":
		return syntax.PathSegments(b.source, ty)
	}
	return nil
}

// useTree records the aliases declared by one use tree. prefix holds the
// segments of enclosing scoped_use_lists.
func (b *builder) useTree(node *sitter.Node, prefix, scope []string, a attrs, public bool) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case "identifier", "scoped_identifier", "self", "crate", "super":
		segs := concat(prefix, syntax.PathSegments(b.source, node))
		if len(segs) > 0 && segs[len(segs)-1] == "self" {
			segs = segs[:len(segs)-1]
		}
		if len(segs) == 0 {
			return
		}
		local := segs[len(segs)-1]
		b.addUse(scope, segs, local)
		b.record(scope, local, a, public, "use")

	case "use_as_clause":
		segs := concat(prefix, syntax.PathSegments(b.source, node.ChildByFieldName("path")))
		if len(segs) > 0 && segs[len(segs)-1] == "self" {
			segs = segs[:len(segs)-1]
		}
		local := syntax.Text(b.source, node.ChildByFieldName("alias"))
		if len(segs) == 0 || local == "" || local == "_" {
			return
		}
		b.addUse(scope, segs, local)
		b.record(scope, local, a, public, "use")

	case "use_wildcard":
		var segs []string
		if p := syntax.FirstNamedChild(node); p != nil {
			segs = syntax.PathSegments(b.source, p)
		}
		b.addUse(scope, concat(prefix, segs), "")

	case "scoped_use_list":
		next := concat(prefix, syntax.PathSegments(b.source, node.ChildByFieldName("path")))
		b.useTree(node.ChildByFieldName("list"), next, scope, a, public)

	case "use_list":
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child.IsNamed() {
				b.useTree(child, prefix, scope, a, public)
			}
		}
	}
}

func (b *builder) addUse(scope, segs []string, local string) {
	target, absolute := b.normalize(scope, segs)
	if len(target) == 0 {
		return
	}
	b.ix.addAlias(alias{
		Scope:    append([]string(nil), scope...),
		Target:   target,
		Local:    local,
		Absolute: absolute,
	})
}

// normalize rewrites crate, self, super and the alloc_crate spelling into an
// absolute path. Paths starting with anything else stay relative.
func (b *builder) normalize(scope, segs []string) ([]string, bool) {
	if len(segs) == 0 {
		return nil, false
	}
	switch segs[0] {
	case "crate", "$crate":
		return concat([]string{b.crate}, segs[1:]), true
	case "alloc_crate":
		return concat([]string{"alloc"}, segs[1:]), true
	case "std", "core", "alloc":
		return append([]string(nil), segs...), true
	case "self":
		return concat(scope, segs[1:]), true
	case "super":
		base := append([]string(nil), scope...)
		rest := segs
		for len(rest) > 0 && rest[0] == "super" {
			if len(base) > 1 {
				base = base[:len(base)-1]
			}
			rest = rest[1:]
		}
		return concat(base, rest), true
	}
	return append([]string(nil), segs...), false
}
