package syntax

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Text returns the source slice spanned by node.
func Text(source []byte, node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if end > uint(len(source)) || start > end {
		return ""
	}
	return string(source[start:end])
}

// ChildOfKind returns the first direct child of the given kind.
func ChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

// HasChildKind reports whether node has a direct child of kind.
func HasChildKind(node *sitter.Node, kind string) bool {
	return ChildOfKind(node, kind) != nil
}

// FirstNamedChild returns the first named direct child.
func FirstNamedChild(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.IsNamed() {
			return child
		}
	}
	return nil
}

// Contains reports whether the subtree rooted at node has a node of kind.
func Contains(node *sitter.Node, kind string) bool {
	if node == nil {
		return false
	}
	if node.Kind() == kind {
		return true
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if Contains(node.Child(i), kind) {
			return true
		}
	}
	return false
}

// FirstError returns the first ERROR or MISSING node in document order.
func FirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := FirstError(node.Child(i)); found != nil {
			return found
		}
	}
	return node
}

// PathSegments flattens an identifier, scoped_identifier or
// scoped_type_identifier into its segments. A leading "::" yields no extra
// segment.
func PathSegments(source []byte, node *sitter.Node) []string {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "scoped_identifier", "scoped_type_identifier":
		segs := PathSegments(source, node.ChildByFieldName("path"))
		if name := node.ChildByFieldName("name"); name != nil {
			segs = append(segs, Text(source, name))
		}
		return segs
	case "generic_type":
		return PathSegments(source, node.ChildByFieldName("type"))
	default:
		text := strings.TrimSpace(Text(source, node))
		if text == "" {
			return nil
		}
		return []string{text}
	}
}

// StripDelimiters removes the outer (), [] or {} of a token tree.
func StripDelimiters(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return text
	}
	switch {
	case text[0] == '(' && text[len(text)-1] == ')',
		text[0] == '[' && text[len(text)-1] == ']',
		text[0] == '{' && text[len(text)-1] == '}':
		return text[1 : len(text)-1]
	}
	return text
}
