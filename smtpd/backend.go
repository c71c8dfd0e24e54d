// Package smtpd implements the SMTP receive-side state machine of
// spec §4.6, built on the teacher's SMTP transport library
// (github.com/emersion/go-smtp): the library owns wire-level command
// framing (EHLO/HELO, RSET, NOOP, QUIT, the DATA "." terminator), and
// Backend/Session here supply the mailing-set pipeline logic (parse,
// resolve, evaluate, tag, relay) and the reply-code mapping of spec §7.
package smtpd

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/mailingset/mailingset/logger"
	"github.com/mailingset/mailingset/metrics"
	"github.com/mailingset/mailingset/relay"
	"github.com/mailingset/mailingset/resolver"
	"github.com/mailingset/mailingset/universe"
)

// Config carries the pieces of spec §6's "incoming" configuration
// block the core state machine needs. It is a plain struct filled in
// by cmd/mailingset from the external config package — the core never
// parses a config file itself (spec §1 scope).
type Config struct {
	IncomingDomain string
	AcceptFrom     []*net.IPNet // nil/empty means accept from anywhere
	MaxMessageSize int64
	IdleTimeout    time.Duration
	SessionTimeout time.Duration
}

// Backend adapts the mailing-set pipeline to smtp.Backend. One Backend
// is shared read-only across all connections; the Universe and
// Resolver it holds are safe for concurrent use (spec §5).
type Backend struct {
	cfg      Config
	universe *universe.Universe
	resolver *resolver.Resolver
	dispatch relay.Dispatcher
}

// NewBackend builds a Backend over an already-constructed Universe and
// Resolver (built once at startup, per spec §3 lifecycle) and a relay
// Dispatcher (spec §4.7).
func NewBackend(cfg Config, u *universe.Universe, r *resolver.Resolver, dispatch relay.Dispatcher) *Backend {
	return &Backend{cfg: cfg, universe: u, resolver: r, dispatch: dispatch}
}

// NewServer wraps the Backend in a *smtp.Server with the minimal
// feature set spec §4.6 calls for: no advertised extension the server
// does not actually honor, no client authentication (spec §1
// non-goals: access is IP-based only).
func NewServer(addr, hostname string, backend *Backend) *smtp.Server {
	s := smtp.NewServer(backend)
	s.Addr = addr
	s.Domain = hostname
	s.AllowInsecureAuth = true
	s.EnableREQUIRETLS = false
	s.MaxRecipients = 0 // unlimited; each RCPT TO is validated independently (spec §4.6)
	if backend.cfg.MaxMessageSize > 0 {
		s.MaxMessageBytes = backend.cfg.MaxMessageSize
	}
	if backend.cfg.IdleTimeout > 0 {
		s.ReadTimeout = backend.cfg.IdleTimeout
		s.WriteTimeout = backend.cfg.IdleTimeout
	} else {
		s.ReadTimeout = 5 * time.Minute
		s.WriteTimeout = 5 * time.Minute
	}
	return s
}

// NewSession implements smtp.Backend. It enforces the connection-level
// accept_from policy of spec §4.6 step 1 before any session state is
// created; go-smtp rejects the connection with the returned error.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := c.Conn().RemoteAddr()
	ip := hostIP(remote)

	if len(b.cfg.AcceptFrom) > 0 && !ipAllowed(ip, b.cfg.AcceptFrom) {
		logger.Warn("smtpd: connection refused, peer outside accept_from", "remote", remote)
		metrics.ConnectionsRejected.Inc()
		return nil, &smtp.SMTPError{
			Code:    554,
			Message: "connection refused",
		}
	}

	metrics.ConnectionsAccepted.Inc()
	s := &Session{
		backend: b,
		ctx:     context.Background(),
		id:      newSessionID(),
		remote:  remote,
	}
	logger.Info("smtpd: session started", "id", s.id, "remote", remote)
	return s, nil
}

func hostIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}

func ipAllowed(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

var sessionCounter atomic.Int64

func newSessionID() string {
	n := sessionCounter.Add(1)
	return time.Now().UTC().Format("20060102T150405") + "-" + strconv.FormatInt(n, 10)
}
