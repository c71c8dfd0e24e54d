// Package universe holds the immutable snapshot of configured mailing
// lists and the alias index used to look identifiers up during
// resolution. It is built once at process start (spec §3, §4.2) and
// never mutated afterwards.
package universe

import (
	"fmt"
	"strings"

	"github.com/mailingset/mailingset/consts"
)

// MemberKind classifies one line of a list definition file.
type MemberKind int

const (
	// MemberAddress is a bare or display-named email address.
	MemberAddress MemberKind = iota
	// MemberListRef is a reference to another list by name.
	MemberListRef
)

// Member is one entry of a list's member sequence: either an address
// (with an optional display name) or a reference to another list.
type Member struct {
	Kind        MemberKind
	Address     string // canonical (lowercased) address, set when Kind == MemberAddress
	DisplayName string // optional personal name, set when Kind == MemberAddress
	ListName    string // referenced list name, set when Kind == MemberListRef
}

// List is a named, ordered sequence of members.
type List struct {
	Name    string
	Members []Member
}

// ListProvider yields the raw (list-name, member-line) pairs the
// universe is built from. Implemented by the config package, which
// reads one file per list from disk; the core never touches the
// filesystem itself.
type ListProvider interface {
	// Lists returns every configured list name paired with its
	// non-blank, non-comment member lines, in file order.
	Lists() (map[string][]string, error)
}

// SymbolProvider yields the list-name -> short-tag mapping used by the
// subject tagger (spec §4.5).
type SymbolProvider interface {
	Symbols() (map[string]string, error)
}

// aliasEntry tracks the canonical address(es) an alias key has been
// seen to map to, so a second distinct address can mark it ambiguous.
type aliasEntry struct {
	canonical string
	ambiguous bool
}

// Universe is the immutable, read-only snapshot of the configured list
// universe (spec §3). Zero value is not usable; construct with New.
type Universe struct {
	lists   map[string]*List
	aliases map[string]*aliasEntry // lowercase alias key -> canonical address (or ambiguous marker)
	symbols map[string]string      // list name -> configured short tag
}

// Lists returns the named list, or nil if name does not name a list.
func (u *Universe) Lists(name string) (*List, bool) {
	l, ok := u.lists[strings.ToLower(name)]
	return l, ok
}

// IsList reports whether name (case-insensitive) names a configured list.
func (u *Universe) IsList(name string) bool {
	_, ok := u.lists[strings.ToLower(name)]
	return ok
}

// Symbol returns the configured short tag for a list name, or the
// list name itself if no symbol was configured (spec §4.5).
func (u *Universe) Symbol(listName string) string {
	if sym, ok := u.symbols[strings.ToLower(listName)]; ok && sym != "" {
		return sym
	}
	return listName
}

// AliasLookup is the result of looking an identifier up in the alias
// index: exactly one canonical address, or an ambiguity.
type AliasLookup struct {
	Canonical string
	Ambiguous bool
	Found     bool
}

// Alias looks identifier up as a non-list alias (username, display
// name token, or period-joined full name). Ambiguity (the same key
// pointing at two distinct canonical addresses) is reported here, not
// at construction time (spec §4.2 collision policy, invariant in §3).
func (u *Universe) Alias(identifier string) AliasLookup {
	e, ok := u.aliases[strings.ToLower(identifier)]
	if !ok {
		return AliasLookup{}
	}
	if e.ambiguous {
		return AliasLookup{Ambiguous: true, Found: true}
	}
	return AliasLookup{Canonical: e.canonical, Found: true}
}

// New builds an immutable Universe from a ListProvider and a
// SymbolProvider, validating acyclicity of list references (spec §3
// invariant, §4.2, §9). It never mutates its inputs and the result is
// safe for concurrent read-only use for the remainder of the process.
func New(lp ListProvider, sp SymbolProvider) (*Universe, error) {
	rawLists, err := lp.Lists()
	if err != nil {
		return nil, fmt.Errorf("universe: loading lists: %w", err)
	}
	rawSymbols, err := sp.Symbols()
	if err != nil {
		return nil, fmt.Errorf("universe: loading symbols: %w", err)
	}

	u := &Universe{
		lists:   make(map[string]*List, len(rawLists)),
		aliases: make(map[string]*aliasEntry),
		symbols: make(map[string]string, len(rawSymbols)),
	}
	for name, sym := range rawSymbols {
		u.symbols[strings.ToLower(name)] = sym
	}

	for name, lines := range rawLists {
		l, err := parseList(name, lines)
		if err != nil {
			return nil, fmt.Errorf("universe: list %q: %w", name, err)
		}
		u.lists[strings.ToLower(name)] = l
	}

	if err := detectCycles(u.lists); err != nil {
		return nil, err
	}

	for _, l := range u.lists {
		for _, m := range l.Members {
			if m.Kind != MemberAddress {
				continue
			}
			u.addAliases(m)
		}
	}

	return u, nil
}

// addAliases registers every alias a display-named address entry
// contributes: the canonical address itself is not an alias key (list
// membership already indexes it), but the username portion and the
// name-derived tokens are (spec §4.2).
func (u *Universe) addAliases(m Member) {
	username := m.Address
	if at := strings.IndexByte(username, '@'); at >= 0 {
		username = username[:at]
	}
	u.addAlias(username, m.Address)

	if m.DisplayName == "" {
		return
	}
	tokens := strings.Fields(m.DisplayName)
	if len(tokens) == 0 {
		return
	}
	seen := make(map[string]bool, len(tokens)+2)
	add := func(tok string) {
		tok = strings.ToLower(tok)
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		u.addAlias(tok, m.Address)
	}
	add(tokens[0])
	add(tokens[len(tokens)-1])
	for _, t := range tokens[1 : len(tokens)-1] {
		add(t)
	}
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}
	add(strings.Join(lowered, "."))
}

func (u *Universe) addAlias(key, canonical string) {
	key = strings.ToLower(key)
	canonical = strings.ToLower(canonical)
	if e, ok := u.aliases[key]; ok {
		if e.canonical != canonical {
			e.ambiguous = true
		}
		return
	}
	u.aliases[key] = &aliasEntry{canonical: canonical}
}

// detectCycles runs a DFS coloring pass over list-reference edges and
// fails on any back-edge (spec §3 invariant, §4.2, §9).
func detectCycles(lists map[string]*List) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(lists))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return fmt.Errorf("%w: %s -> %s", consts.ErrCycle, strings.Join(path, " -> "), name)
		case black:
			return nil
		}
		color[name] = gray
		path = append(path, name)
		if l, ok := lists[name]; ok {
			for _, m := range l.Members {
				if m.Kind == MemberListRef {
					ref := strings.ToLower(m.ListName)
					if _, exists := lists[ref]; !exists {
						// A list referring to a name that isn't itself a
						// list is resolved lazily as an alias/unknown at
						// query time, not a load-time error.
						continue
					}
					if err := visit(ref); err != nil {
						return err
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for name := range lists {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}
