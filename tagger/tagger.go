// Package tagger implements the subject-tag rewriter of spec §4.5: it
// renders a compact bracketed form of an expression tree and rewrites
// a message's Subject header, plus injects the Precedence, List-Id,
// and List-Post headers.
package tagger

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message"

	"github.com/mailingset/mailingset/grammar"
	"github.com/mailingset/mailingset/universe"
)

// Symbols resolves list names to their configured short tag, falling
// back to the identifier itself when unconfigured (spec §4.5). It is
// satisfied by *universe.Universe.
type Symbols interface {
	Symbol(listName string) string
}

// Render produces the compact bracketed tag for an expression tree,
// e.g. "[SF&(Dog|Cat)]", preserving the user's explicit grouping
// (parentheses are only emitted around a subexpression that appeared
// braced in the source, per spec §4.5).
func Render(node *grammar.Node, u Symbols) string {
	return "[" + wrapNode(node, u) + "]"
}

// wrapNode renders n and wraps it in parentheses if n.Braced records
// that it appeared inside {...} in the source (spec §4.5: preserve the
// user's grouping, not minimize it).
func wrapNode(n *grammar.Node, u Symbols) string {
	s := contentNode(n, u)
	if n.Braced {
		return "(" + s + ")"
	}
	return s
}

func contentNode(n *grammar.Node, u Symbols) string {
	if n.IsRef() {
		if u != nil {
			return u.Symbol(n.Ident)
		}
		return n.Ident
	}
	return wrapNode(n.Left, u) + n.Op.String() + wrapNode(n.Right, u)
}

// symbolTag is a Symbols implementation over a plain map, used when
// callers already have a name->symbol table and no Universe handy.
type symbolTag map[string]string

func (s symbolTag) Symbol(name string) string {
	if v, ok := s[strings.ToLower(name)]; ok && v != "" {
		return v
	}
	return name
}

// RenderWithSymbols is a convenience wrapper for callers holding a raw
// name->symbol map instead of a *universe.Universe.
func RenderWithSymbols(node *grammar.Node, symbols map[string]string) string {
	return Render(node, symbolTag(symbols))
}

var _ Symbols = (*universe.Universe)(nil)

// RewriteSubject implements the rewrite rule of spec §4.5: if the
// current subject already begins with "[tag] " using the exact same
// tag string, it is left unchanged; otherwise "[tag] " is prepended
// with a single space. The tag is plain ASCII, so it can always be
// inserted ahead of an RFC-2047 encoded-word subject without decoding
// or re-encoding the remainder — encoded-words are self-delimiting
// atoms and prepending ASCII text before one never invalidates it.
func RewriteSubject(current, tag string) string {
	prefix := tag + " "
	if strings.HasPrefix(current, prefix) {
		return current
	}
	return prefix + current
}

// InjectHeaders applies the Subject rewrite and adds the list headers
// required by spec §4.5 to h, replacing any existing instances of
// Precedence, List-Id, and List-Post. localPart is the verbatim
// original recipient local part (not lowercased) and domain is the
// incoming domain.
func InjectHeaders(h *message.Header, tag, localPart, domain string) {
	subject := h.Get("Subject")
	h.Set("Subject", RewriteSubject(subject, tag))

	h.Set("Precedence", "list")
	h.Set("List-Id", fmt.Sprintf("<%s.mailingset.%s>", localPart, domain))
	h.Set("List-Post", fmt.Sprintf("<mailto:%s@%s>", localPart, domain))
}
