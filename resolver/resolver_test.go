package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailingset/mailingset/universe"
)

type mapListProvider map[string][]string

func (p mapListProvider) Lists() (map[string][]string, error) { return p, nil }

type mapSymbolProvider map[string]string

func (p mapSymbolProvider) Symbols() (map[string]string, error) { return p, nil }

func buildUniverse(t *testing.T, lists map[string][]string) *universe.Universe {
	t.Helper()
	u, err := universe.New(mapListProvider(lists), mapSymbolProvider(nil))
	require.NoError(t, err)
	return u
}

func scenarioUniverse(t *testing.T) *universe.Universe {
	t.Helper()
	return buildUniverse(t, map[string][]string{
		"sf":  {"alice@x", "bob@x"},
		"dog": {`"Bob Q Brown" <bob@x>`, "carol@x"},
		"cat": {"alice@x", "dave@x"},
	})
}

func TestResolve_List(t *testing.T) {
	u := scenarioUniverse(t)
	r := New(u)

	addrs, err := r.Resolve("sf")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@x", "bob@x"}, addrs.Slice())
}

func TestResolve_NestedList(t *testing.T) {
	u := buildUniverse(t, map[string][]string{
		"parent": {"child", "extra@x"},
		"child":  {"alice@x", "bob@x"},
	})
	r := New(u)

	addrs, err := r.Resolve("parent")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@x", "bob@x", "extra@x"}, addrs.Slice())
}

func TestResolve_Alias(t *testing.T) {
	u := scenarioUniverse(t)
	r := New(u)

	addrs, err := r.Resolve("bob.q.brown")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@x"}, addrs.Slice())
}

func TestResolve_UnknownName(t *testing.T) {
	u := scenarioUniverse(t)
	r := New(u)

	_, err := r.Resolve("nobody")
	require.Error(t, err)
	uerr, ok := err.(*UnknownNameError)
	require.True(t, ok)
	assert.Equal(t, "nobody", uerr.Identifier)
}

func TestResolve_AmbiguousName(t *testing.T) {
	u := buildUniverse(t, map[string][]string{
		"a": {`"Pat Jones" <pat1@x>`},
		"b": {`"Pat Smith" <pat2@x>`},
	})
	r := New(u)

	_, err := r.Resolve("pat")
	require.Error(t, err)
	_, ok := err.(*AmbiguousNameError)
	assert.True(t, ok)
}

func TestResolve_CaseInsensitive(t *testing.T) {
	u := scenarioUniverse(t)
	r := New(u)

	addrs, err := r.Resolve("SF")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@x", "bob@x"}, addrs.Slice())
}

func TestResolve_MemoizesListExpansion(t *testing.T) {
	u := scenarioUniverse(t)
	r := New(u)

	first, err := r.Resolve("sf")
	require.NoError(t, err)
	second, err := r.Resolve("sf")
	require.NoError(t, err)

	assert.ElementsMatch(t, first.Slice(), second.Slice())
	// The expansion is stored in the memo table after the first call.
	_, cached := r.memo["sf"]
	assert.True(t, cached)
}

func TestNewAddrSet_Slice(t *testing.T) {
	s := NewAddrSet("b@x", "a@x")
	assert.ElementsMatch(t, []string{"a@x", "b@x"}, s.Slice())
}
