// Package stdindex maps standard library paths to the Rust release that
// stabilized them. It is built once from the expanded sources of std, core
// and alloc and is read-only afterwards, so a single *Index can be shared by
// every worker without locking.
package stdindex

import (
	"strconv"
	"strings"
)

// Crates lists the expanded crates in bare-macro lookup order.
var Crates = []string{"std", "core", "alloc"}

const (
	defaultSince = "1.0.0"
	maxAliasHops = 32
)

// Definition is a resolved standard library item.
type Definition struct {
	Path   string
	Since  string
	Minor  int // -1 when Since carries no numeric minor component
	Public bool
	Kind   string
}

type item struct {
	Since    string           `json:"since"`
	Public   bool             `json:"public"`
	Kind     string           `json:"kind,omitempty"`
	Children map[string]*item `json:"children,omitempty"`
}

func newItem() *item {
	return &item{Since: defaultSince, Public: true}
}

func (it *item) child(name string) *item {
	if it == nil || it.Children == nil {
		return nil
	}
	return it.Children[name]
}

// alias is a use declaration. Local is empty for glob imports. A relative
// target is tried below Scope first and then from the root.
type alias struct {
	Scope    []string `json:"scope"`
	Target   []string `json:"target"`
	Local    string   `json:"local,omitempty"`
	Absolute bool     `json:"absolute"`
}

// Index is the stabilization tree plus the alias table.
type Index struct {
	root    *item
	aliases map[string][]alias
}

func newIndex() *Index {
	return &Index{root: newItem(), aliases: make(map[string][]alias)}
}

func scopeKey(scope []string) string {
	return strings.Join(scope, "::")
}

func (ix *Index) addAlias(a alias) {
	key := scopeKey(a.Scope)
	ix.aliases[key] = append(ix.aliases[key], a)
}

func (ix *Index) ensure(path []string) *item {
	cur := ix.root
	for _, seg := range path {
		if cur.Children == nil {
			cur.Children = make(map[string]*item)
		}
		next, ok := cur.Children[seg]
		if !ok {
			next = newItem()
			cur.Children[seg] = next
		}
		cur = next
	}
	return cur
}

func (ix *Index) lookup(path []string) *item {
	cur := ix.root
	for _, seg := range path {
		cur = cur.child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Resolve looks up a "::"-separated path as written in user code. Bare
// names fall back to the prelude, bare macro names ("vec!") to the crate
// roots in std, core, alloc order.
func (ix *Index) Resolve(qualified string) (Definition, bool) {
	qualified = strings.TrimPrefix(strings.TrimSpace(qualified), "::")
	if qualified == "" {
		return Definition{}, false
	}
	segs := strings.Split(qualified, "::")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
	}

	if len(segs) == 1 && strings.HasSuffix(segs[0], "!") {
		for _, crate := range Crates {
			if it := ix.lookup([]string{crate, segs[0]}); it != nil {
				return definition([]string{crate, segs[0]}, it), true
			}
		}
		return Definition{}, false
	}

	path, it := ix.resolve(segs, 0, make(map[string]bool))
	if it == nil {
		return Definition{}, false
	}
	return definition(path, it), true
}

// Size returns the number of recorded items.
func (ix *Index) Size() int {
	var count func(*item) int
	count = func(it *item) int {
		n := 1
		for _, c := range it.Children {
			n += count(c)
		}
		return n
	}
	return count(ix.root) - 1
}

// resolve walks segs from the root. On a miss it tries, in order, named and
// glob aliases declared in the module reached so far, then the alias that
// produced the last matched node. seen bounds the search to one attempt per
// distinct path.
func (ix *Index) resolve(segs []string, hops int, seen map[string]bool) ([]string, *item) {
	if hops > maxAliasHops {
		return nil, nil
	}
	key := strings.Join(segs, "::")
	if seen[key] {
		return nil, nil
	}
	seen[key] = true

	cur := ix.root
	var path []string
	for i, seg := range segs {
		if seg == "self" {
			continue
		}
		if next := cur.child(seg); next != nil {
			cur = next
			path = append(path, seg)
			continue
		}
		rest := segs[i+1:]

		for _, a := range ix.aliases[scopeKey(path)] {
			if a.Local != "" {
				if a.Local != seg {
					continue
				}
				for _, target := range ix.targets(a) {
					if p, it := ix.resolve(concat(target, rest), hops+1, seen); it != nil {
						return p, it
					}
				}
				continue
			}
			for _, target := range ix.targets(a) {
				if !ix.mayExport(target, seg) {
					continue
				}
				if p, it := ix.resolve(concat(target, append([]string{seg}, rest...)), hops+1, seen); it != nil {
					return p, it
				}
			}
		}

		// The matched node may be a re-export stub; follow the use that
		// created it.
		if len(path) > 0 {
			parent, name := path[:len(path)-1], path[len(path)-1]
			for _, a := range ix.aliases[scopeKey(parent)] {
				if a.Local != name {
					continue
				}
				for _, target := range ix.targets(a) {
					if p, it := ix.resolve(concat(target, segs[i:]), hops+1, seen); it != nil {
						return p, it
					}
				}
			}
		}
		return nil, nil
	}
	if len(path) == 0 {
		return nil, nil
	}
	return path, cur
}

// mayExport reports whether module scope has name as a child, or could
// re-export it through a use declaration.
func (ix *Index) mayExport(scope []string, name string) bool {
	mod := ix.lookup(scope)
	if mod == nil {
		return false
	}
	if mod.child(name) != nil {
		return true
	}
	for _, a := range ix.aliases[scopeKey(scope)] {
		if a.Local == name || a.Local == "" {
			return true
		}
	}
	return false
}

func (ix *Index) targets(a alias) [][]string {
	if a.Absolute {
		return [][]string{a.Target}
	}
	return [][]string{concat(a.Scope, a.Target), a.Target}
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func definition(path []string, it *item) Definition {
	return Definition{
		Path:   strings.Join(path, "::"),
		Since:  it.Since,
		Minor:  Minor(it.Since),
		Public: it.Public,
		Kind:   it.Kind,
	}
}

// Minor returns the second dotted component of a Rust version ("1.36.0" ->
// 36), or -1.
func Minor(version string) int {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) < 2 {
		return -1
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 0 {
		return -1
	}
	return n
}
