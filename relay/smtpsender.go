package relay

import (
	"context"
	"fmt"
	"net"

	"github.com/emersion/go-smtp"
)

// NewSMTPSender returns a Sender that speaks plain SMTP to the given
// outbound relay using github.com/emersion/go-smtp's client, in the
// same shape as the teacher's sendToExternalRelay: connect, MAIL FROM,
// RCPT TO, DATA, QUIT.
func NewSMTPSender() Sender {
	return func(ctx context.Context, server string, port int, envelopeSender, recipient string, message []byte) error {
		addr := net.JoinHostPort(server, fmt.Sprintf("%d", port))

		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("relay: dial %s: %w", addr, err)
		}
		defer c.Close()

		if err := c.Hello("localhost"); err != nil {
			return fmt.Errorf("relay: EHLO: %w", err)
		}
		if err := c.Mail(envelopeSender, nil); err != nil {
			return fmt.Errorf("relay: MAIL FROM: %w", err)
		}
		if err := c.Rcpt(recipient, nil); err != nil {
			return fmt.Errorf("relay: RCPT TO %s: %w", recipient, err)
		}

		wc, err := c.Data()
		if err != nil {
			return fmt.Errorf("relay: DATA: %w", err)
		}
		if _, err := wc.Write(message); err != nil {
			wc.Close()
			return fmt.Errorf("relay: writing message: %w", err)
		}
		if err := wc.Close(); err != nil {
			return fmt.Errorf("relay: closing DATA: %w", err)
		}

		return c.Quit()
	}
}
