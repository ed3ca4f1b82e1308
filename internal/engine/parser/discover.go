package parser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	domainErrors "modernity/internal/core/errors"
	"modernity/internal/engine/syntax"
	"modernity/internal/shared/observability"
	"modernity/internal/shared/util"
)

var metavarRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\s*:\s*([a-z_]+)`)

// moduleFile is a queued module source. Dir is where its child modules live.
type moduleFile struct {
	path string
	dir  string
}

type macroRule struct {
	kinds map[string]string // metavariable -> fragment specifier
	body  string            // transcriber without its delimiters
}

type localMacro struct {
	name  string
	file  string
	line  int // line of the macro_rules! definition
	rules []macroRule
}

// discovery follows mod declarations from the crate roots. It never scans
// the filesystem beyond the paths those declarations name.
type discovery struct {
	parser  *Parser
	root    string
	forest  *SyntaxForest
	visited map[string]bool
	queue   []moduleFile
	macros  map[string]*localMacro
}

func (d *discovery) run(ctx context.Context) error {
	d.macros = make(map[string]*localMacro)
	for _, root := range d.crateRoots() {
		d.enqueue(root, filepath.Dir(root))
	}
	for len(d.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.visit(next)
	}
	return nil
}

// crateRoots lists the library root, then binary roots, that exist.
func (d *discovery) crateRoots() []string {
	m := d.forest.Manifest
	candidates := []string{"src/lib.rs"}
	if m.LibPath != "" {
		candidates[0] = m.LibPath
	}
	candidates = append(candidates, "src/main.rs")
	candidates = append(candidates, m.BinPaths...)

	var bins []string
	if matches, err := filepath.Glob(filepath.Join(d.root, "src", "bin", "*.rs")); err == nil {
		bins = append(bins, matches...)
	}
	if matches, err := filepath.Glob(filepath.Join(d.root, "src", "bin", "*", "main.rs")); err == nil {
		bins = append(bins, matches...)
	}
	sort.Strings(bins)

	var roots []string
	for _, c := range candidates {
		roots = append(roots, filepath.Join(d.root, filepath.FromSlash(c)))
	}
	roots = append(roots, bins...)

	var out []string
	for _, r := range roots {
		if !d.inside(r) {
			continue
		}
		if info, err := os.Stat(r); err == nil && !info.IsDir() {
			out = append(out, filepath.Clean(r))
		}
	}
	return out
}

func (d *discovery) inside(path string) bool {
	return util.HasPathPrefix(filepath.ToSlash(filepath.Clean(path)), filepath.ToSlash(filepath.Clean(d.root)))
}

func (d *discovery) rel(path string) string {
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return util.NormalizePatternPath(filepath.ToSlash(rel))
}

func (d *discovery) enqueue(path, dir string) {
	path = filepath.Clean(path)
	if d.visited[path] {
		return
	}
	d.visited[path] = true
	d.queue = append(d.queue, moduleFile{path: path, dir: dir})
}

func (d *discovery) visit(mf moduleFile) {
	rel := d.rel(mf.path)
	if d.parser.excluded(rel) {
		slog.Debug("module excluded", "path", rel)
		return
	}

	file := &SourceFile{Path: rel}
	d.forest.Files = append(d.forest.Files, file)

	data, err := os.ReadFile(mf.path)
	if err != nil {
		d.skip(file, "unreadable: "+err.Error(), 0, 0)
		return
	}
	if int64(len(data)) > d.parser.opts.MaxFileBytes {
		d.skip(file, fmt.Sprintf("file exceeds %d bytes", d.parser.opts.MaxFileBytes), 0, 0)
		return
	}

	tree := d.parser.pool.Parse(data)
	if tree == nil {
		d.skip(file, "parser produced no tree", 0, 0)
		return
	}
	file.Source = data
	file.Tree = tree
	root := tree.RootNode()

	if root.HasError() {
		bad := syntax.FirstError(root)
		loc := (&syntax.WalkContext{Source: data, Path: rel}).Location(bad)
		if d.parser.opts.Strict {
			d.skip(file, fmt.Sprintf("syntax error at %d:%d", loc.Line, loc.Column), loc.Line, loc.Column)
		} else {
			file.HasErrors = true
			d.forest.Issues = append(d.forest.Issues, Issue{
				Code: domainErrors.CodeParseFailure, File: rel, Line: loc.Line, Column: loc.Column,
				Message: "syntax error ignored",
			})
		}
	}

	d.scanModules(root, data, mf.dir, filepath.Dir(mf.path))

	if file.Status == FileSkipped {
		tree.Close()
		file.Tree = nil
		file.Source = nil
		return
	}
	d.collectMacros(root, data, rel)
}

func (d *discovery) skip(file *SourceFile, reason string, line, col int) {
	file.Status = FileSkipped
	file.Reason = reason
	observability.FilesSkippedTotal.Inc()
	d.forest.Issues = append(d.forest.Issues, Issue{
		Code: domainErrors.CodeParseFailure, File: file.Path, Line: line, Column: col, Message: reason,
	})
	slog.Debug("file skipped", "path", file.Path, "reason", reason)
}

// scanModules walks an item list for mod declarations. modDir is where
// child module files are looked up, pathBase anchors #[path] attributes.
func (d *discovery) scanModules(list *sitter.Node, source []byte, modDir, pathBase string) {
	var pathAttr string
	for i := uint(0); i < list.ChildCount(); i++ {
		child := list.Child(i)
		switch child.Kind() {
		case "attribute_item":
			if p, ok := pathAttribute(child, source); ok {
				pathAttr = p
			}
			continue
		case "line_comment", "block_comment":
			continue
		case "mod_item":
			name := strings.TrimPrefix(syntax.Text(source, child.ChildByFieldName("name")), "r#")
			if body := child.ChildByFieldName("body"); body != nil {
				inner := filepath.Join(modDir, name)
				base := inner
				if pathAttr != "" {
					inner = filepath.Join(pathBase, filepath.FromSlash(pathAttr))
					base = inner
				}
				d.scanModules(body, source, inner, base)
			} else {
				d.declare(name, pathAttr, modDir, pathBase)
			}
		}
		pathAttr = ""
	}
}

// declare resolves `mod name;` to a file and queues it.
func (d *discovery) declare(name, pathAttr, modDir, pathBase string) {
	if pathAttr != "" {
		target := filepath.Join(pathBase, filepath.FromSlash(pathAttr))
		if !d.inside(target) {
			d.forest.Issues = append(d.forest.Issues, Issue{
				Code: domainErrors.CodeParseFailure, File: d.rel(target),
				Message: fmt.Sprintf("module %s points outside the crate", name),
			})
			return
		}
		if fileExists(target) {
			d.enqueue(target, filepath.Dir(target))
			return
		}
		d.missing(name, d.rel(target))
		return
	}

	flat := filepath.Join(modDir, name+".rs")
	if fileExists(flat) {
		d.enqueue(flat, filepath.Join(modDir, name))
		return
	}
	nested := filepath.Join(modDir, name, "mod.rs")
	if fileExists(nested) {
		d.enqueue(nested, filepath.Join(modDir, name))
		return
	}
	d.missing(name, d.rel(flat))
}

func (d *discovery) missing(name, rel string) {
	d.forest.Issues = append(d.forest.Issues, Issue{
		Code: domainErrors.CodeNotFound, File: rel,
		Message: fmt.Sprintf("module %s has no source file", name),
	})
}

// collectMacros records every macro_rules! definition in a parsed file.
// The first definition of a name wins.
func (d *discovery) collectMacros(root *sitter.Node, source []byte, rel string) {
	walker := syntax.NewWalker(map[string]syntax.NodeHandler{
		"macro_definition": func(ctx *syntax.WalkContext, node *sitter.Node) bool {
			d.forest.LocalMacroDefs++
			name := ctx.Text(node.ChildByFieldName("name"))
			if name == "" {
				return true
			}
			if _, seen := d.macros[name]; seen {
				return true
			}
			m := &localMacro{name: name, file: rel, line: ctx.Location(node).Line}
			for i := uint(0); i < node.ChildCount(); i++ {
				rule := node.Child(i)
				if rule.Kind() != "macro_rule" {
					continue
				}
				m.rules = append(m.rules, macroRule{
					kinds: metavariableKinds(ctx.Text(rule.ChildByFieldName("left"))),
					body:  syntax.StripDelimiters(ctx.Text(rule.ChildByFieldName("right"))),
				})
			}
			d.macros[name] = m
			return true
		},
	})
	walker.Walk(&syntax.WalkContext{Source: source, Path: rel}, root)
}

func metavariableKinds(matcher string) map[string]string {
	kinds := make(map[string]string)
	for _, m := range metavarRe.FindAllStringSubmatch(matcher, -1) {
		kinds[m[1]] = m[2]
	}
	return kinds
}

// pathAttribute extracts the value of #[path = "..."].
func pathAttribute(item *sitter.Node, source []byte) (string, bool) {
	attr := syntax.ChildOfKind(item, "attribute")
	if attr == nil || syntax.Text(source, syntax.FirstNamedChild(attr)) != "path" {
		return "", false
	}
	value := strings.TrimSpace(syntax.Text(source, attr.ChildByFieldName("value")))
	value = strings.Trim(value, `"`)
	if value == "" {
		return "", false
	}
	return value, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
