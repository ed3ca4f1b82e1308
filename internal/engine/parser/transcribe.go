package parser

import (
	"strings"
)

// transcribe turns a macro_rules! transcriber into plain Rust by replacing
// each metavariable with a placeholder of its fragment kind and flattening
// repetitions to a single pass.
func transcribe(rule macroRule) string {
	var b strings.Builder
	writeTranscribed(&b, rule.body, rule.kinds)
	return b.String()
}

func writeTranscribed(b *strings.Builder, body string, kinds map[string]string) {
	for i := 0; i < len(body); {
		c := body[i]
		if c != '$' || i+1 >= len(body) {
			b.WriteByte(c)
			i++
			continue
		}

		next := body[i+1]
		switch {
		case next == '(':
			end := matchingParen(body, i+1)
			if end < 0 {
				b.WriteString(body[i:])
				return
			}
			writeTranscribed(b, body[i+2:end], kinds)
			i = skipRepetitionTail(body, end+1)
		case isIdentStart(next):
			j := i + 1
			for j < len(body) && isIdentPart(body[j]) {
				j++
			}
			name := body[i+1 : j]
			b.WriteString(placeholder(name, kinds[name]))
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
}

func placeholder(name, kind string) string {
	if name == "crate" {
		return "crate"
	}
	switch kind {
	case "vis", "item", "stmt":
		return ""
	case "block":
		return "{}"
	case "literal":
		return "0"
	case "lifetime":
		return "'__mv_" + name
	}
	return "__mv_" + name
}

// matchingParen returns the index of the ')' closing the '(' at open.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// skipRepetitionTail consumes the optional separator and the *, + or ?
// operator following a repetition group.
func skipRepetitionTail(s string, i int) int {
	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if j < len(s) && isRepetitionOp(s[j]) {
		return j + 1
	}
	if j < len(s) {
		k := j + 1
		for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
			k++
		}
		if k < len(s) && isRepetitionOp(s[k]) {
			return k + 1
		}
	}
	return i
}

func isRepetitionOp(c byte) bool {
	return c == '*' || c == '+' || c == '?'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
