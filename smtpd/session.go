package smtpd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-smtp"

	"github.com/mailingset/mailingset/grammar"
	"github.com/mailingset/mailingset/logger"
	"github.com/mailingset/mailingset/metrics"
	"github.com/mailingset/mailingset/relay"
	"github.com/mailingset/mailingset/resolver"
	"github.com/mailingset/mailingset/seteval"
	"github.com/mailingset/mailingset/tagger"
)

// acceptedRcpt is one RCPT TO that made it through parse+resolve+eval
// (spec §4.6 step 3): its local-part expression tree, resolved
// address set, and the rendered subject tag for that expression.
type acceptedRcpt struct {
	localPart string
	node      *grammar.Node
	addrs     resolver.AddrSet
	tag       string
}

// Session implements smtp.Session for one connection's worth of
// mailing-set state (spec §4.6). Command order within a session is
// strict FIFO (spec §5); concurrency exists only between sessions, so
// no locking is needed inside Session itself.
type Session struct {
	backend *Backend
	ctx     context.Context
	id      string
	remote  net.Addr

	sender     string
	recipients []acceptedRcpt
}

// Mail implements spec §4.6 step 2: accept any syntactically valid
// address as the envelope sender, recorded only for bounce
// attribution.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if from != "" {
		if _, err := mail.ParseAddress(from); err != nil {
			logger.Warn("smtpd: invalid MAIL FROM", "id", s.id, "from", from, "error", err)
			return &smtp.SMTPError{Code: 553, Message: "invalid sender address"}
		}
	}
	s.sender = from
	logger.Info("smtpd: MAIL FROM accepted", "id", s.id, "from", from)
	return nil
}

// Rcpt implements spec §4.6 step 3: validate the domain, parse the
// local-part expression, resolve and evaluate it, and reply per the
// spec §7 error-kind table.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	local, domain, err := splitAddress(to)
	if err != nil {
		metrics.RecipientsTotal.WithLabelValues("bad_address").Inc()
		return &smtp.SMTPError{Code: 550, Message: "malformed recipient address"}
	}

	if !strings.EqualFold(domain, s.backend.cfg.IncomingDomain) {
		metrics.RecipientsTotal.WithLabelValues("wrong_domain").Inc()
		logger.Warn("smtpd: wrong domain", "id", s.id, "to", to)
		return &smtp.SMTPError{Code: 550, Message: fmt.Sprintf("relay not permitted for domain %s", domain)}
	}

	node, err := grammar.Parse(local)
	if err != nil {
		metrics.RecipientsTotal.WithLabelValues("parse_error").Inc()
		logger.Warn("smtpd: parse error", "id", s.id, "to", to, "error", err)
		return &smtp.SMTPError{Code: 550, Message: fmt.Sprintf("parse error: %v", err)}
	}

	addrs, err := seteval.Eval(node, s.backend.resolver)
	if err != nil {
		reason, code := classifyResolveError(err)
		metrics.RecipientsTotal.WithLabelValues(reason).Inc()
		logger.Warn("smtpd: resolve error", "id", s.id, "to", to, "error", err)
		return &smtp.SMTPError{Code: code, Message: err.Error()}
	}

	if len(addrs) == 0 {
		metrics.RecipientsTotal.WithLabelValues("empty_set").Inc()
		logger.Warn("smtpd: empty result set", "id", s.id, "to", to)
		return &smtp.SMTPError{Code: 550, Message: "expression resolves to an empty set"}
	}

	tag := tagger.Render(node, s.backend.universe)
	s.recipients = append(s.recipients, acceptedRcpt{
		localPart: local,
		node:      node,
		addrs:     addrs,
		tag:       tag,
	})
	metrics.RecipientsTotal.WithLabelValues("accepted").Inc()
	logger.Info("smtpd: recipient accepted", "id", s.id, "to", to, "tag", tag, "count", len(addrs))
	return nil
}

// classifyResolveError maps a resolver/evaluator error to a metrics
// label and SMTP reply code per spec §7.
func classifyResolveError(err error) (label string, code int) {
	switch err.(type) {
	case *resolver.UnknownNameError:
		return "unknown_name", 550
	case *resolver.AmbiguousNameError:
		return "ambiguous_name", 550
	default:
		return "internal_error", 451
	}
}

// Data implements spec §4.6 step 4: buffer the message, rewrite
// headers per recipient expression, and hand off to the relay
// dispatcher.
func (s *Session) Data(r io.Reader) error {
	if s.sender == "" && len(s.recipients) == 0 {
		return &smtp.SMTPError{Code: 503, Message: "bad sequence of commands"}
	}
	if len(s.recipients) == 0 {
		// At least one RCPT TO must be accepted for DATA to proceed
		// (spec §4.6 step 3); go-smtp already enforces this by never
		// calling Data without a successful Rcpt, but the check is
		// kept explicit for defense in depth.
		return &smtp.SMTPError{Code: 503, Message: "no valid recipients"}
	}

	var reader io.Reader = r
	if s.backend.cfg.MaxMessageSize > 0 {
		reader = io.LimitReader(r, s.backend.cfg.MaxMessageSize+1)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return &smtp.SMTPError{Code: 451, Message: "failed to read message"}
	}
	if s.backend.cfg.MaxMessageSize > 0 && int64(buf.Len()) > s.backend.cfg.MaxMessageSize {
		return &smtp.SMTPError{Code: 552, Message: "message exceeds maximum size"}
	}

	rendered := make([]relay.AcceptedRecipient, 0, len(s.recipients))
	for _, rcpt := range s.recipients {
		msg, err := rewriteForRecipient(buf.Bytes(), rcpt, s.backend.cfg.IncomingDomain)
		if err != nil {
			logger.Error("smtpd: failed to rewrite message", "id", s.id, "expression", rcpt.localPart, "error", err)
			return &smtp.SMTPError{Code: 451, Message: "internal error preparing message"}
		}
		rendered = append(rendered, relay.AcceptedRecipient{
			Expression: rcpt.localPart,
			Addresses:  rcpt.addrs.Slice(),
			Message:    msg,
		})
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.backend.dispatch.Deliver(ctx, rendered); err != nil {
		logger.Error("smtpd: relay handoff failed", "id", s.id, "error", err)
		return &smtp.SMTPError{Code: 451, Message: "relay handoff failed, try again later"}
	}

	metrics.MessagesQueued.Inc()
	logger.Info("smtpd: message queued", "id", s.id, "recipients", len(s.recipients))
	return nil
}

// rewriteForRecipient reparses raw for one accepted expression and
// rewrites the Subject/Precedence/List-Id/List-Post headers per spec
// §4.5, using that expression's own tag (spec §4.7: "the Subject tag
// and List-Id reflect the particular expression it resolved from").
func rewriteForRecipient(raw []byte, rcpt acceptedRcpt, domain string) ([]byte, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	if entity == nil {
		return nil, fmt.Errorf("empty message entity")
	}

	tagger.InjectHeaders(&entity.Header, rcpt.tag, rcpt.localPart, domain)

	var out bytes.Buffer
	if err := entity.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("serializing message: %w", err)
	}
	return out.Bytes(), nil
}

// Reset implements smtp.Session (RSET, spec §4.6 step 5).
func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout implements smtp.Session (QUIT, spec §4.6 step 5).
func (s *Session) Logout() error {
	logger.Info("smtpd: session ended", "id", s.id, "remote", s.remote)
	return nil
}

func splitAddress(addr string) (local, domain string, err error) {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return "", "", fmt.Errorf("missing @ in address %q", addr)
	}
	return addr[:at], addr[at+1:], nil
}
