package tagger

import (
	"testing"

	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailingset/mailingset/grammar"
)

func mustParse(t *testing.T, s string) *grammar.Node {
	t.Helper()
	n, err := grammar.Parse(s)
	require.NoError(t, err)
	return n
}

func scenarioSymbols() map[string]string {
	return map[string]string{"sf": "SF", "dog": "Dog", "cat": "Cat"}
}

func TestRender_Scenario1(t *testing.T) {
	n := mustParse(t, "sf_&_dog")
	assert.Equal(t, "[SF&Dog]", RenderWithSymbols(n, scenarioSymbols()))
}

func TestRender_Scenario2_PreservesGrouping(t *testing.T) {
	n := mustParse(t, "sf_&_{dog_|_cat}")
	assert.Equal(t, "[SF&(Dog|Cat)]", RenderWithSymbols(n, scenarioSymbols()))
}

func TestRender_Scenario6_FallsBackToIdentifier(t *testing.T) {
	n := mustParse(t, "dog_-_bob.q.brown")
	// bob.q.brown has no configured symbol, so the tag falls back to
	// the identifier itself.
	assert.Equal(t, "[Dog-bob.q.brown]", RenderWithSymbols(n, scenarioSymbols()))
}

func TestRender_UnbracedGroupingNotAdded(t *testing.T) {
	n := mustParse(t, "sf_&_dog_&_cat")
	assert.Equal(t, "[SF&Dog&Cat]", RenderWithSymbols(n, scenarioSymbols()))
}

func TestRewriteSubject_PrependsTag(t *testing.T) {
	assert.Equal(t, "[SF&Dog] hello", RewriteSubject("hello", "[SF&Dog]"))
}

func TestRewriteSubject_IdempotentWithSameTag(t *testing.T) {
	once := RewriteSubject("hello", "[SF&Dog]")
	twice := RewriteSubject(once, "[SF&Dog]")
	assert.Equal(t, once, twice)
}

func TestRewriteSubject_DifferentTagPrependsAgain(t *testing.T) {
	once := RewriteSubject("hello", "[SF&Dog]")
	changed := RewriteSubject(once, "[Cat]")
	assert.Equal(t, "[Cat] [SF&Dog] hello", changed)
}

func TestRewriteSubject_PreservesEncodedWordSubject(t *testing.T) {
	encoded := "=?UTF-8?B?SGVsbG8gV29ybGQ=?="
	got := RewriteSubject(encoded, "[SF&Dog]")
	assert.Equal(t, "[SF&Dog] "+encoded, got)
}

func TestInjectHeaders_SetsAllHeaders(t *testing.T) {
	var h message.Header
	h.Set("Subject", "hello")

	InjectHeaders(&h, "[SF&Dog]", "sf_&_dog", "x")

	assert.Equal(t, "[SF&Dog] hello", h.Get("Subject"))
	assert.Equal(t, "list", h.Get("Precedence"))
	assert.Equal(t, "<sf_&_dog.mailingset.x>", h.Get("List-Id"))
	assert.Equal(t, "<mailto:sf_&_dog@x>", h.Get("List-Post"))
}

func TestInjectHeaders_ReplacesExistingListHeaders(t *testing.T) {
	var h message.Header
	h.Set("Precedence", "bulk")
	h.Set("List-Id", "<stale>")

	InjectHeaders(&h, "[Cat]", "cat", "x")

	assert.Equal(t, "list", h.Get("Precedence"))
	assert.Equal(t, "<cat.mailingset.x>", h.Get("List-Id"))
}
