// Package syntax holds the tree-sitter plumbing shared by the standard
// library index and the crate parser: the Rust grammar, a parser pool and a
// kind-dispatching tree walker.
package syntax

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
)

var (
	rustOnce sync.Once
	rustLang *sitter.Language

	sharedOnce sync.Once
	sharedPool *ParserPool
)

// Rust returns the tree-sitter Rust grammar.
func Rust() *sitter.Language {
	rustOnce.Do(func() {
		rustLang = sitter.NewLanguage(tree_sitter_rust.Language())
	})
	return rustLang
}

// SharedPool returns the process-wide Rust parser pool.
func SharedPool() *ParserPool {
	sharedOnce.Do(func() {
		sharedPool = NewParserPool(Rust())
	})
	return sharedPool
}
