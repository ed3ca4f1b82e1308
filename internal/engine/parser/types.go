// Package parser turns an unpacked crate into a SyntaxForest: the parsed
// module files reachable from the crate roots, plus fragments recovered from
// macro invocations, and the table of how each invocation resolved.
package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
)

type FileStatus int

const (
	FileParsed FileStatus = iota
	FileSkipped
)

func (s FileStatus) String() string {
	if s == FileSkipped {
		return "skipped"
	}
	return "parsed"
}

// SourceFile is one module file. Tree is nil for skipped files.
type SourceFile struct {
	Path      string // slash-separated, relative to the crate root
	Status    FileStatus
	Reason    string
	HasErrors bool // parsed with error recovery (non-strict mode)
	Source    []byte
	Tree      *sitter.Tree
}

type FragmentKind int

const (
	FragmentArguments FragmentKind = iota // re-parsed invocation arguments
	FragmentExpansion                     // transcriber of a crate-local macro_rules!
)

// Fragment is syntax recovered from a macro. Roots are the nodes that carry
// the recovered code; the wrapper used to make it parsable is excluded.
type Fragment struct {
	Kind   FragmentKind
	Macro  string
	File   string
	Depth  int
	Source []byte
	Tree   *sitter.Tree
	Roots  []*sitter.Node
}

type MacroKind int

const (
	MacroUnresolved MacroKind = iota
	MacroLocal
	MacroStd
)

func (k MacroKind) String() string {
	switch k {
	case MacroLocal:
		return "local"
	case MacroStd:
		return "std"
	}
	return "unresolved"
}

// Invocation is one resolved macro_invocation. Since is set for std macros.
type Invocation struct {
	Name  string
	Kind  MacroKind
	Since string
	File  string
	Line  int
	Depth int
}

// Issue is a file-level problem that did not drop the version.
type Issue struct {
	Code    domainErrors.ErrorCode
	File    string
	Line    int
	Column  int
	Macro   string
	Message string
}

// SyntaxForest is the parsed representation of one version. It owns tree
// memory until Close.
type SyntaxForest struct {
	Version     domain.LibraryVersion
	Manifest    Manifest
	Files       []*SourceFile
	Fragments   []*Fragment
	Invocations []Invocation
	// LocalMacroDefs counts macro_rules! definitions in parsed files.
	LocalMacroDefs int
	Issues         []Issue
}

// Unit is a walkable piece of a forest.
type Unit struct {
	Path   string
	Source []byte
	Roots  []*sitter.Node
}

// Units returns the parsed files followed by the fragments, in discovery
// order.
func (f *SyntaxForest) Units() []Unit {
	units := make([]Unit, 0, len(f.Files)+len(f.Fragments))
	for _, file := range f.Files {
		if file.Status != FileParsed || file.Tree == nil {
			continue
		}
		units = append(units, Unit{Path: file.Path, Source: file.Source, Roots: []*sitter.Node{file.Tree.RootNode()}})
	}
	for _, frag := range f.Fragments {
		units = append(units, Unit{Path: frag.File, Source: frag.Source, Roots: frag.Roots})
	}
	return units
}

func (f *SyntaxForest) ParsedCount() int {
	n := 0
	for _, file := range f.Files {
		if file.Status == FileParsed {
			n++
		}
	}
	return n
}

func (f *SyntaxForest) SkippedCount() int {
	return len(f.Files) - f.ParsedCount()
}

// Close releases every tree. The forest must not be walked afterwards.
func (f *SyntaxForest) Close() {
	if f == nil {
		return
	}
	for _, file := range f.Files {
		if file.Tree != nil {
			file.Tree.Close()
			file.Tree = nil
		}
	}
	for _, frag := range f.Fragments {
		if frag.Tree != nil {
			frag.Tree.Close()
			frag.Tree = nil
			frag.Roots = nil
		}
	}
}
