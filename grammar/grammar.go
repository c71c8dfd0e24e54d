// Package grammar implements the recipient local-part parser of spec
// §4.1: a small grammar over identifiers, three binary set operators
// spelled as three-character tokens, and mandatory brace grouping.
//
//	expr        := diff_expr
//	diff_expr   := atom ( "_-_" atom )*
//	            |  atom ( "_&_" atom )+
//	            |  atom ( "_|_" atom )+
//	            |  atom
//	atom        := identifier | "{" expr "}"
//	identifier  := [A-Za-z0-9._-]+
//
// Mixing two different operator kinds unbraced at the same nesting
// level is a syntax error; there is no operator precedence to fall
// back on (spec §1 non-goals).
package grammar

import (
	"fmt"
	"strings"
)

// Op identifies a set operator.
type Op int

const (
	OpUnion Op = iota
	OpInter
	OpDiff
)

func (o Op) String() string {
	switch o {
	case OpUnion:
		return "|"
	case OpInter:
		return "&"
	case OpDiff:
		return "-"
	default:
		return "?"
	}
}

// Node is one node of an expression tree: either a Ref leaf or a
// binary operator node. The evaluator and tagger both walk this tree.
type Node struct {
	// Ident is set when this node is a Ref leaf.
	Ident string
	// Op, Left, Right are set when this node is an operator node.
	Op          Op
	Left, Right *Node
	// Braced records whether this node's textual source was wrapped in
	// {...}; the tagger uses it to preserve, not minimize, grouping
	// (spec §4.5).
	Braced bool
}

func ref(ident string) *Node { return &Node{Ident: ident} }

func binary(op Op, l, r *Node) *Node { return &Node{Op: op, Left: l, Right: r} }

// IsRef reports whether n is a leaf identifier reference.
func (n *Node) IsRef() bool { return n.Left == nil && n.Right == nil }

// Reason enumerates the ParseError reasons named in spec §4.1.
type Reason string

const (
	ReasonMismatchedBrace Reason = "mismatched_brace"
	ReasonMisplacedBrace  Reason = "misplaced_brace"
	ReasonMixedOperators  Reason = "mixed_operators"
	ReasonEmptyGroup      Reason = "empty_group"
	ReasonEmptyOperand    Reason = "empty_operand"
	ReasonBadIdentifier   Reason = "bad_identifier"
)

// ParseError reports why a local-part expression failed to parse,
// with the byte position of the offending token (spec §4.1).
type ParseError struct {
	Reason   Reason
	Position int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s at position %d", e.Reason, e.Position)
}

func parseErr(reason Reason, pos int) error {
	return &ParseError{Reason: reason, Position: pos}
}

const (
	tokUnion = "_|_"
	tokInter = "_&_"
	tokDiff  = "_-_"
)

func isIdentByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '.' || b == '_' || b == '-'
}

// Parse parses a recipient local-part (with any @domain suffix already
// stripped by the caller, per spec §4.1) into an expression tree.
func Parse(s string) (*Node, error) {
	p := &parser{s: s}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, parseErr(ReasonBadIdentifier, strings.IndexAny(s, " \t\r\n"))
	}
	n, end, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if end != len(s) {
		// Leftover input after a complete expression is a stray brace
		// or a byte outside the identifier alphabet.
		if s[end] == '{' || s[end] == '}' {
			return nil, parseErr(ReasonMismatchedBrace, end)
		}
		return nil, parseErr(ReasonBadIdentifier, end)
	}
	return n, nil
}

type parser struct {
	s string
}

// parseExpr parses one expression starting at byte offset start (the
// top level, or the interior of a "{...}" group) and returns the node
// plus the offset immediately past the last byte it consumed.
func (p *parser) parseExpr(start int) (*Node, int, error) {
	first, pos, err := p.parseAtom(start)
	if err != nil {
		return nil, 0, err
	}

	var op Op
	haveOp := false
	nodes := []*Node{first}

	for {
		tok, ok := p.peekOp(pos)
		if !ok {
			break
		}
		if haveOp && tok != op {
			return nil, 0, parseErr(ReasonMixedOperators, pos)
		}
		op = tok
		haveOp = true
		pos += 3 // length of "_X_"

		next, npos, err := p.parseAtom(pos)
		if err != nil {
			return nil, 0, err
		}
		nodes = append(nodes, next)
		pos = npos
	}

	if !haveOp {
		return first, pos, nil
	}

	// Difference is strictly binary-chained left-associative; union and
	// intersection chains fold left-associative too (spec §3, §4.1).
	result := nodes[0]
	for _, n := range nodes[1:] {
		result = binary(op, result, n)
	}
	return result, pos, nil
}

// peekOp reports the operator token at pos, if any, without consuming it.
func (p *parser) peekOp(pos int) (Op, bool) {
	switch {
	case strings.HasPrefix(p.s[pos:], tokUnion):
		return OpUnion, true
	case strings.HasPrefix(p.s[pos:], tokInter):
		return OpInter, true
	case strings.HasPrefix(p.s[pos:], tokDiff):
		return OpDiff, true
	default:
		return 0, false
	}
}

// parseAtom parses a single atom (identifier or braced group) at pos.
func (p *parser) parseAtom(pos int) (*Node, int, error) {
	if pos >= len(p.s) {
		return nil, 0, parseErr(ReasonEmptyOperand, pos)
	}

	if p.s[pos] == '{' {
		if pos+1 < len(p.s) && p.s[pos+1] == '}' {
			return nil, 0, parseErr(ReasonEmptyGroup, pos)
		}
		inner, end, err := p.parseExpr(pos + 1)
		if err != nil {
			return nil, 0, err
		}
		if end >= len(p.s) || p.s[end] != '}' {
			return nil, 0, parseErr(ReasonMismatchedBrace, pos)
		}
		inner.Braced = true
		end++
		if _, isOp := p.peekOp(end); end < len(p.s) && isIdentByte(p.s[end]) && !isOp {
			return nil, 0, parseErr(ReasonMisplacedBrace, end)
		}
		return inner, end, nil
	}

	if p.s[pos] == '}' {
		return nil, 0, parseErr(ReasonMismatchedBrace, pos)
	}

	start := pos
	for pos < len(p.s) && isIdentByte(p.s[pos]) {
		// The three-character operator tokens take priority over a
		// greedy identifier scan: "_|_", "_&_", and "_-_" are reserved
		// even though '_' and '-' are otherwise valid identifier bytes.
		if _, isOp := p.peekOp(pos); isOp && pos > start {
			break
		}
		pos++
	}
	if pos == start {
		return nil, 0, parseErr(ReasonBadIdentifier, pos)
	}
	if pos < len(p.s) && p.s[pos] == '{' {
		// An identifier immediately followed by '{' with no operator
		// between them is a misplaced brace, not two adjacent atoms.
		return nil, 0, parseErr(ReasonMisplacedBrace, pos)
	}
	ident := p.s[start:pos]
	if ident == "" {
		return nil, 0, parseErr(ReasonEmptyGroup, start)
	}
	return ref(strings.ToLower(ident)), pos, nil
}
