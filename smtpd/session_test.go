package smtpd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailingset/mailingset/relay"
	"github.com/mailingset/mailingset/resolver"
	"github.com/mailingset/mailingset/universe"
)

type mapListProvider map[string][]string

func (p mapListProvider) Lists() (map[string][]string, error) { return p, nil }

type mapSymbolProvider map[string]string

func (p mapSymbolProvider) Symbols() (map[string]string, error) { return p, nil }

type recordingDispatcher struct {
	delivered []relay.AcceptedRecipient
	err       error
}

func (d *recordingDispatcher) Deliver(ctx context.Context, recipients []relay.AcceptedRecipient) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, recipients...)
	return nil
}

func scenarioBackend(t *testing.T, dispatch relay.Dispatcher) *Backend {
	t.Helper()
	u, err := universe.New(mapListProvider{
		"sf":  {"alice@x", "bob@x"},
		"dog": {`"Bob Q Brown" <bob@x>`, "carol@x"},
		"cat": {"alice@x", "dave@x"},
	}, mapSymbolProvider{"sf": "SF", "dog": "Dog", "cat": "Cat"})
	require.NoError(t, err)
	r := resolver.New(u)
	return NewBackend(Config{IncomingDomain: "x"}, u, r, dispatch)
}

func newTestSession(backend *Backend) *Session {
	return &Session{backend: backend, ctx: context.Background(), id: "test-1"}
}

func TestMail_AcceptsValidSender(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Mail("sender@example.com", &smtp.MailOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", s.sender)
}

func TestMail_RejectsMalformedSender(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Mail("not an address", &smtp.MailOptions{})
	require.Error(t, err)
	serr, ok := err.(*smtp.SMTPError)
	require.True(t, ok)
	assert.Equal(t, 553, serr.Code)
}

func TestRcpt_Scenario1_Accepted(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Rcpt("sf_&_dog@x", &smtp.RcptOptions{})
	require.NoError(t, err)
	require.Len(t, s.recipients, 1)
	assert.Equal(t, "[SF&Dog]", s.recipients[0].tag)
	assert.ElementsMatch(t, []string{"bob@x"}, s.recipients[0].addrs.Slice())
}

func TestRcpt_Scenario3_EmptySet(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Rcpt("sf_-_sf@x", &smtp.RcptOptions{})
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 550, serr.Code)
}

func TestRcpt_Scenario4_ParseError(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Rcpt("a_&_b}_-_c@x", &smtp.RcptOptions{})
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 550, serr.Code)
}

func TestRcpt_Scenario5_MixedOperators(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Rcpt("sf_&_dog_|_cat@x", &smtp.RcptOptions{})
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 550, serr.Code)
}

func TestRcpt_WrongDomain(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Rcpt("sf@other", &smtp.RcptOptions{})
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 550, serr.Code)
}

func TestRcpt_UnknownName(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Rcpt("nobody@x", &smtp.RcptOptions{})
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 550, serr.Code)
}

func TestRcpt_MultipleIndependentRecipients(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	require.NoError(t, s.Rcpt("sf@x", &smtp.RcptOptions{}))
	require.NoError(t, s.Rcpt("cat@x", &smtp.RcptOptions{}))
	assert.Len(t, s.recipients, 2)
}

func TestData_QueuesAndDelivers(t *testing.T) {
	dispatch := &recordingDispatcher{}
	s := newTestSession(scenarioBackend(t, dispatch))
	require.NoError(t, s.Rcpt("sf_&_dog@x", &smtp.RcptOptions{}))

	raw := "Subject: hello\r\nFrom: sender@example.com\r\n\r\nbody\r\n"
	err := s.Data(strings.NewReader(raw))
	require.NoError(t, err)

	require.Len(t, dispatch.delivered, 1)
	assert.Contains(t, string(dispatch.delivered[0].Message), "[SF&Dog] hello")
	assert.Contains(t, string(dispatch.delivered[0].Message), "List-Id")
}

func TestData_NoRecipientsRejected(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	err := s.Data(strings.NewReader("Subject: hi\r\n\r\nbody\r\n"))
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 503, serr.Code)
}

func TestData_MessageTooLarge(t *testing.T) {
	backend := scenarioBackend(t, &recordingDispatcher{})
	backend.cfg.MaxMessageSize = 10
	s := newTestSession(backend)
	require.NoError(t, s.Rcpt("sf@x", &smtp.RcptOptions{}))

	err := s.Data(strings.NewReader("Subject: this message body is far longer than ten bytes\r\n\r\nbody\r\n"))
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 552, serr.Code)
}

func TestData_RelayHandoffFailure(t *testing.T) {
	dispatch := &recordingDispatcher{err: assertError("boom")}
	s := newTestSession(scenarioBackend(t, dispatch))
	require.NoError(t, s.Rcpt("sf@x", &smtp.RcptOptions{}))

	err := s.Data(strings.NewReader("Subject: hi\r\n\r\nbody\r\n"))
	require.Error(t, err)
	serr := err.(*smtp.SMTPError)
	assert.Equal(t, 451, serr.Code)
}

func TestReset_ClearsSessionState(t *testing.T) {
	s := newTestSession(scenarioBackend(t, &recordingDispatcher{}))
	s.sender = "sender@x"
	require.NoError(t, s.Rcpt("sf@x", &smtp.RcptOptions{}))

	s.Reset()
	assert.Empty(t, s.sender)
	assert.Empty(t, s.recipients)
}

func TestSplitAddress(t *testing.T) {
	local, domain, err := splitAddress("sf_&_dog@x")
	require.NoError(t, err)
	assert.Equal(t, "sf_&_dog", local)
	assert.Equal(t, "x", domain)

	_, _, err = splitAddress("no-at-sign")
	require.Error(t, err)
}

func TestRewriteForRecipient_ProducesValidMessage(t *testing.T) {
	rcpt := acceptedRcpt{localPart: "sf@x", tag: "[SF]"}
	raw := []byte("Subject: hi\r\nFrom: a@b\r\n\r\nbody\r\n")

	out, err := rewriteForRecipient(raw, rcpt, "x")
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("[SF] hi")))
}

type assertError string

func (e assertError) Error() string { return string(e) }
