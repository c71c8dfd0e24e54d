// Package resolver implements the name resolver of spec §4.3: mapping
// an identifier token to a set of canonical addresses, expanding
// nested list references transitively (cycles were already ruled out
// at universe construction) and memoizing per-list expansions for the
// lifetime of the universe.
package resolver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mailingset/mailingset/universe"
)

// AddrSet is an unordered set of canonical addresses (spec §3).
type AddrSet map[string]struct{}

// NewAddrSet builds a set from the given canonical addresses.
func NewAddrSet(addrs ...string) AddrSet {
	s := make(AddrSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

// Slice returns the set's members in unspecified order.
func (s AddrSet) Slice() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	return out
}

// UnknownNameError is raised when an identifier names neither a list
// nor an alias (spec §4.3 step 4, §7).
type UnknownNameError struct {
	Identifier string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown name: %s", e.Identifier)
}

// AmbiguousNameError is raised when an alias key maps to more than one
// distinct canonical address (spec §3, §4.2, §4.3, §7).
type AmbiguousNameError struct {
	Identifier string
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("ambiguous name: %s", e.Identifier)
}

// Resolver maps identifiers to address sets against a fixed Universe,
// memoizing list expansions. The universe is read-only and lock-free
// (spec §5); the memo table is protected by a single mutex so
// steady-state lookups after warm-up do not block each other (spec §5
// concurrency model — reads only take the lock to check/populate the
// cache, they never block on I/O).
type Resolver struct {
	u    *universe.Universe
	mu   sync.Mutex
	memo map[string]AddrSet
}

// New returns a Resolver over u.
func New(u *universe.Universe) *Resolver {
	return &Resolver{u: u, memo: make(map[string]AddrSet)}
}

// Resolve maps identifier to a set of canonical addresses (spec §4.3).
func (r *Resolver) Resolve(identifier string) (AddrSet, error) {
	id := strings.ToLower(identifier)

	if r.u.IsList(id) {
		return r.expandList(id, make(map[string]bool))
	}

	lookup := r.u.Alias(id)
	if !lookup.Found {
		return nil, &UnknownNameError{Identifier: identifier}
	}
	if lookup.Ambiguous {
		return nil, &AmbiguousNameError{Identifier: identifier}
	}
	return NewAddrSet(lookup.Canonical), nil
}

// expandList returns the transitive union of a list's address members,
// memoized per list name. Cycles were already rejected at universe
// construction (spec §3, §4.2, §9), so the visiting set here is only a
// defensive backstop, not the primary cycle guard.
func (r *Resolver) expandList(name string, visiting map[string]bool) (AddrSet, error) {
	r.mu.Lock()
	if cached, ok := r.memo[name]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	if visiting[name] {
		return AddrSet{}, nil
	}
	visiting[name] = true

	l, ok := r.u.Lists(name)
	if !ok {
		return AddrSet{}, nil
	}

	result := make(AddrSet)
	for _, m := range l.Members {
		switch m.Kind {
		case universe.MemberAddress:
			result[m.Address] = struct{}{}
		case universe.MemberListRef:
			ref := m.ListName
			if r.u.IsList(ref) {
				sub, err := r.expandList(ref, visiting)
				if err != nil {
					return nil, err
				}
				for a := range sub {
					result[a] = struct{}{}
				}
				continue
			}
			// A member line that isn't itself a defined list is an
			// alias or address reference resolved the normal way.
			lookup := r.u.Alias(ref)
			if !lookup.Found {
				return nil, &UnknownNameError{Identifier: ref}
			}
			if lookup.Ambiguous {
				return nil, &AmbiguousNameError{Identifier: ref}
			}
			result[lookup.Canonical] = struct{}{}
		}
	}

	r.mu.Lock()
	r.memo[name] = result
	r.mu.Unlock()

	return result, nil
}
