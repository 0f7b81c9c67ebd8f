// Package smtpd is the inbound SMTP listener. It accepts mail, hands every
// message to the gateway and always answers DATA with 250: the gateway
// annotates, it never blocks delivery.
package smtpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

// MessageHandler processes one accepted message
type MessageHandler interface {
	HandleMessage(ctx context.Context, env domain.Envelope, raw []byte) domain.AnnotatedMessage
}

// Config holds the listener settings
type Config struct {
	ListenAddr      string
	Domain          string
	MaxMessageBytes int64
	MaxRecipients   int
	MaxConnections  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	// RateLimit is the number of new sessions accepted per second, 0 for no limit
	RateLimit float64
	RateBurst int

	// AllowedDomains restricts RCPT TO; empty accepts every domain
	AllowedDomains []string

	// HandleTimeout bounds archiving, annotation and relay of one message
	HandleTimeout time.Duration
}

var (
	errRelayDenied = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 1},
		Message:      "Relaying denied",
	}
	errTooBusy = &smtp.SMTPError{
		Code:         421,
		EnhancedCode: smtp.EnhancedCode{4, 7, 0},
		Message:      "Too many connections, try again later",
	}
)

// Server wraps the go-smtp server with the gateway backend
type Server struct {
	smtp    *smtp.Server
	backend *Backend
	logger  *zap.SugaredLogger
}

// NewServer creates a listener that passes messages to handler
func NewServer(cfg Config, handler MessageHandler, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	be := NewBackend(cfg, handler, logger)

	s := smtp.NewServer(be)
	s.Addr = cfg.ListenAddr
	s.Domain = cfg.Domain
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout
	s.MaxMessageBytes = cfg.MaxMessageBytes
	s.MaxRecipients = cfg.MaxRecipients
	s.AllowInsecureAuth = true
	s.ErrorLog = zap.NewStdLog(logger.Desugar())

	return &Server{smtp: s, backend: be, logger: logger}
}

// ListenAndServe listens on the configured address and blocks until Close
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.smtp.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.smtp.Addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l and blocks until Close
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infow("SMTP listener started", "addr", l.Addr().String(), "domain", s.smtp.Domain)
	err := s.smtp.Serve(l)
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting connections and closes open sessions
func (s *Server) Close() error {
	return s.smtp.Close()
}

// Backend implements smtp.Backend
type Backend struct {
	cfg     Config
	handler MessageHandler
	logger  *zap.SugaredLogger
	allowed map[string]bool
	slots   chan struct{}
	limiter *rate.Limiter
}

// NewBackend creates the session factory
func NewBackend(cfg Config, handler MessageHandler, logger *zap.SugaredLogger) *Backend {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &Backend{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		allowed: make(map[string]bool, len(cfg.AllowedDomains)),
	}
	for _, d := range cfg.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			b.allowed[d] = true
		}
	}
	if cfg.MaxConnections > 0 {
		b.slots = make(chan struct{}, cfg.MaxConnections)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if b.cfg.HandleTimeout <= 0 {
		b.cfg.HandleTimeout = 2 * time.Minute
	}
	return b
}

// NewSession is called after the client connects
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if conn := c.Conn(); conn != nil {
		remote = conn.RemoteAddr().String()
	}

	if b.limiter != nil && !b.limiter.Allow() {
		b.logger.Warnw("Session rate limit exceeded", "remote_addr", remote)
		return nil, errTooBusy
	}
	if b.slots != nil {
		select {
		case b.slots <- struct{}{}:
		default:
			b.logger.Warnw("Connection limit reached", "remote_addr", remote, "max_connections", b.cfg.MaxConnections)
			return nil, errTooBusy
		}
	}

	return &session{backend: b, remote: remote}, nil
}

func (b *Backend) release() {
	if b.slots != nil {
		<-b.slots
	}
}

func (b *Backend) recipientAllowed(addr string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	return b.allowed[strings.ToLower(addr[at+1:])]
}

// session implements smtp.Session for one connection
type session struct {
	backend *Backend
	remote  string
	from    string
	to      []string
	closed  bool
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if !s.backend.recipientAllowed(to) {
		s.backend.logger.Infow("Recipient refused", "rcpt_to", to, "remote_addr", s.remote)
		return errRelayDenied
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	env := domain.NewEnvelope(s.from, append([]string(nil), s.to...))
	env.RemoteAddr = s.remote

	ctx, cancel := context.WithTimeout(context.Background(), s.backend.cfg.HandleTimeout)
	defer cancel()

	annotated := s.backend.handler.HandleMessage(ctx, env, raw)
	s.backend.logger.Debugw("DATA accepted",
		"envelope_id", env.ID.String(),
		"size_bytes", len(raw),
		"decision", string(annotated.Decision),
	)
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	if !s.closed {
		s.closed = true
		s.backend.release()
	}
	return nil
}
