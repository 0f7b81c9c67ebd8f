package relay

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

// SMTPRelay implements ports.Relay by forwarding messages to a downstream
// SMTP server, one connection per message
type SMTPRelay struct {
	addr    string
	helo    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewSMTPRelay creates a relay for the downstream server at addr ("host:port")
func NewSMTPRelay(addr, helo string, timeout time.Duration) *SMTPRelay {
	if helo == "" {
		helo = "localhost"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPRelay{
		addr:    addr,
		helo:    helo,
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

// Deliver runs one SMTP transaction: HELO, MAIL, RCPT per recipient, DATA, QUIT
func (r *SMTPRelay) Deliver(ctx context.Context, from string, to []string, msg []byte) error {
	if len(to) == 0 {
		return fmt.Errorf("relay: no recipients")
	}

	conn, err := r.dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("relay: dial %s: %w", r.addr, err)
	}

	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("relay: set deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(r.helo); err != nil {
		return fmt.Errorf("relay: hello: %w", err)
	}
	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("relay: mail from %q: %w", from, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("relay: rcpt to %q: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("relay: data: %w", err)
	}
	if _, err := bytes.NewReader(msg).WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("relay: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("relay: message refused: %w", err)
	}

	return c.Quit()
}
