// Package relay implements the relay dispatcher of spec §4.7: for each
// accepted RCPT TO expression, emit one outbound message per resolved
// canonical address (plus an archive bcc, if configured) through an
// injected SMTP send function.
package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/mailingset/mailingset/consts"
	"github.com/mailingset/mailingset/logger"
	"github.com/mailingset/mailingset/metrics"
)

// Sender is the "SMTP send surface" of spec §6: the core invokes an
// injected function to deliver one message to one recipient. A
// concrete implementation lives in relay/smtpsender.go, built on
// github.com/emersion/go-smtp's client.
type Sender func(ctx context.Context, server string, port int, envelopeSender, recipient string, message []byte) error

// AcceptedRecipient is one RCPT TO that the smtpd state machine
// accepted: its resolved address set and the message bytes rewritten
// for its particular expression (Subject tag and List-Id reflect that
// expression, spec §4.7).
type AcceptedRecipient struct {
	Expression string   // the original local-part expression, for logging
	Addresses  []string // resolved canonical addresses
	Message    []byte   // rewritten message bytes for this expression
}

// Config carries the pieces of spec §6's "outgoing" configuration
// block the dispatcher needs.
type Config struct {
	Server         string
	Port           int
	EnvelopeSender string
	ArchiveAddr    string // optional; empty means disabled
	Concurrency    int    // bounded worker pool size for relay emissions (spec §5); 0 means a sane default
}

// Dispatcher is the interface the smtpd session hands off to on DATA
// completion (spec §4.6 step 4). It is satisfied by *SMTPDispatcher.
type Dispatcher interface {
	// Deliver emits one outbound message per canonical address across
	// all accepted recipients. It returns an error only when hand-off
	// itself could not be committed synchronously (spec §4.6 step 4,
	// §7 RelayHandoffError); per-recipient delivery failures are
	// logged, not returned (spec §4.7, §5).
	Deliver(ctx context.Context, recipients []AcceptedRecipient) error
}

// SMTPDispatcher is the default Dispatcher, sending each message
// through Sender. Relay emissions for a single accepted message may
// run in parallel (spec §5); their completion order is unobservable to
// the sender. The outbound client is assumed concurrency-safe by
// Sender's contract; if it isn't, callers should fund a Sender that
// funnels calls through its own bounded pool, mirroring the teacher's
// relayqueue worker pattern.
type SMTPDispatcher struct {
	cfg    Config
	send   Sender
	sem    chan struct{}
	semOne sync.Once
}

// NewSMTPDispatcher builds a dispatcher over cfg and send.
func NewSMTPDispatcher(cfg Config, send Sender) *SMTPDispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &SMTPDispatcher{cfg: cfg, send: send, sem: make(chan struct{}, cfg.Concurrency)}
}

// Deliver implements Dispatcher.
func (d *SMTPDispatcher) Deliver(ctx context.Context, recipients []AcceptedRecipient) error {
	if d.send == nil {
		return fmt.Errorf("%w: no sender configured", consts.ErrRelayHandoff)
	}

	var wg sync.WaitGroup
	// Deduplication is per-expression only (spec §4.7): across
	// multiple accepted RCPT TO expressions in one session, the same
	// canonical address may legitimately receive more than one copy.
	for _, rcpt := range recipients {
		rcpt := rcpt
		for _, addr := range rcpt.Addresses {
			addr := addr
			wg.Add(1)
			d.sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-d.sem }()
				d.deliverOne(ctx, rcpt.Expression, addr, rcpt.Message)
			}()
		}
		if d.cfg.ArchiveAddr != "" {
			wg.Add(1)
			d.sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-d.sem }()
				d.deliverOne(ctx, rcpt.Expression, d.cfg.ArchiveAddr, rcpt.Message)
			}()
		}
	}
	wg.Wait()
	return nil
}

func (d *SMTPDispatcher) deliverOne(ctx context.Context, expression, addr string, message []byte) {
	err := d.send(ctx, d.cfg.Server, d.cfg.Port, d.cfg.EnvelopeSender, addr, message)
	if err != nil {
		metrics.RelayDeliveries.WithLabelValues("failure").Inc()
		// Delivery failures are logged and left to the downstream
		// MTA's bounce machinery (spec §4.7, §7); they do not make
		// Deliver return an error, so the session still replies 250.
		logger.Error("relay: delivery failed", "expression", expression, "recipient", addr, "error", err)
		return
	}
	metrics.RelayDeliveries.WithLabelValues("success").Inc()
	logger.Info("relay: delivered", "expression", expression, "recipient", addr)
}
