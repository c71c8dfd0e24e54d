// Package seteval implements the set-expression evaluator of spec
// §4.4: walking an expression tree and producing a set of canonical
// addresses using union, intersection, and difference. It never
// mutates the universe (spec §3 invariant) — all state lives in the
// resolver's memo table and the sets returned here.
package seteval

import (
	"github.com/mailingset/mailingset/grammar"
	"github.com/mailingset/mailingset/resolver"
)

// Eval walks node, resolving each leaf identifier through r and
// combining the results with the node's operators. Errors from
// Resolve propagate unchanged (spec §4.4); an empty result is not an
// error here, that policy lives with the caller (spec §4.4, §7).
func Eval(node *grammar.Node, r *resolver.Resolver) (resolver.AddrSet, error) {
	if node.IsRef() {
		return r.Resolve(node.Ident)
	}

	left, err := Eval(node.Left, r)
	if err != nil {
		return nil, err
	}
	right, err := Eval(node.Right, r)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case grammar.OpUnion:
		return union(left, right), nil
	case grammar.OpInter:
		return inter(left, right), nil
	case grammar.OpDiff:
		return diff(left, right), nil
	default:
		return nil, nil
	}
}

func union(a, b resolver.AddrSet) resolver.AddrSet {
	out := make(resolver.AddrSet, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func inter(a, b resolver.AddrSet) resolver.AddrSet {
	out := make(resolver.AddrSet)
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if _, ok := big[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func diff(a, b resolver.AddrSet) resolver.AddrSet {
	out := make(resolver.AddrSet, len(a))
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}
