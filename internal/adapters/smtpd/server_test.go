package smtpd

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

type handled struct {
	env domain.Envelope
	raw []byte
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []handled
}

func (h *recordingHandler) HandleMessage(_ context.Context, env domain.Envelope, raw []byte) domain.AnnotatedMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, handled{env: env, raw: raw})
	return domain.AnnotatedMessage{Envelope: env, Raw: raw, Decision: domain.DecisionAccept}
}

func (h *recordingHandler) all() []handled {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handled(nil), h.msgs...)
}

func startServer(t *testing.T, cfg Config) (*recordingHandler, string) {
	t.Helper()
	if cfg.Domain == "" {
		cfg.Domain = "gateway.test"
	}
	h := &recordingHandler{}
	srv := NewServer(cfg, h, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	return h, l.Addr().String()
}

// send runs one plain-text SMTP transaction against addr
func send(t *testing.T, addr, from string, to []string, msg string) error {
	t.Helper()
	c, err := smtp.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	if err := c.Hello("client.test"); err != nil {
		return err
	}
	if err := c.Mail(from, nil); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func TestServer_AcceptsAndHandsOff(t *testing.T) {
	h, addr := startServer(t, Config{})

	msg := "Subject: Invoice\r\n\r\nPlease verify your account.\r\n"
	err := send(t, addr, "alice@outside.test", []string{"bob@corp.test", "carol@corp.test"}, msg)
	require.NoError(t, err)

	got := h.all()
	require.Len(t, got, 1)
	assert.Equal(t, "alice@outside.test", got[0].env.MailFrom)
	assert.Equal(t, []string{"bob@corp.test", "carol@corp.test"}, got[0].env.RcptTo)
	assert.NotEmpty(t, got[0].env.RemoteAddr)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", got[0].env.ID.String())
	assert.Equal(t, msg, string(got[0].raw))
}

func TestServer_RecipientAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		rcpt    string
		wantErr bool
	}{
		{name: "empty list accepts everything", allowed: nil, rcpt: "bob@anywhere.test"},
		{name: "listed domain", allowed: []string{"corp.test"}, rcpt: "bob@corp.test"},
		{name: "domain match ignores case", allowed: []string{" Corp.Test "}, rcpt: "bob@CORP.test"},
		{name: "unlisted domain", allowed: []string{"corp.test"}, rcpt: "bob@elsewhere.test", wantErr: true},
		{name: "subdomain is not the domain", allowed: []string{"corp.test"}, rcpt: "bob@mail.corp.test", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, addr := startServer(t, Config{AllowedDomains: tt.allowed})

			c, err := smtp.Dial(addr)
			require.NoError(t, err)
			defer c.Close()

			require.NoError(t, c.Hello("client.test"))
			require.NoError(t, c.Mail("alice@outside.test", nil))

			err = c.Rcpt(tt.rcpt, nil)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			var smtpErr *smtp.SMTPError
			require.ErrorAs(t, err, &smtpErr)
			assert.Equal(t, 550, smtpErr.Code)
			assert.Equal(t, smtp.EnhancedCode{5, 7, 1}, smtpErr.EnhancedCode)
			assert.Empty(t, h.all())
		})
	}
}

func TestServer_ConnectionLimit(t *testing.T) {
	_, addr := startServer(t, Config{MaxConnections: 1})

	first, err := smtp.Dial(addr)
	require.NoError(t, err)
	require.NoError(t, first.Hello("first.test"))

	second, err := smtp.Dial(addr)
	require.NoError(t, err)
	err = second.Hello("second.test")
	require.Error(t, err)
	second.Close()

	require.NoError(t, first.Quit())

	// the slot is released when the server notices the first client left
	require.Eventually(t, func() bool {
		c, err := smtp.Dial(addr)
		if err != nil {
			return false
		}
		defer c.Close()
		return c.Hello("third.test") == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_RateLimit(t *testing.T) {
	_, addr := startServer(t, Config{RateLimit: 0.001, RateBurst: 1})

	first, err := smtp.Dial(addr)
	require.NoError(t, err)
	require.NoError(t, first.Hello("first.test"))
	defer first.Close()

	second, err := smtp.Dial(addr)
	require.NoError(t, err)
	defer second.Close()
	assert.Error(t, second.Hello("second.test"))
}

func TestServer_MessageTooLarge(t *testing.T) {
	h, addr := startServer(t, Config{MaxMessageBytes: 64})

	msg := "Subject: big\r\n\r\n" + strings.Repeat("x", 200) + "\r\n"
	err := send(t, addr, "alice@outside.test", []string{"bob@corp.test"}, msg)
	require.Error(t, err)
	assert.Empty(t, h.all())
}

func TestSession_ResetClearsEnvelope(t *testing.T) {
	be := NewBackend(Config{}, &recordingHandler{}, nil)
	s := &session{backend: be}

	require.NoError(t, s.Mail("alice@outside.test", nil))
	require.NoError(t, s.Rcpt("bob@corp.test", nil))
	s.Reset()

	assert.Empty(t, s.from)
	assert.Empty(t, s.to)
}
