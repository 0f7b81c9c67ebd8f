package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"go.uber.org/zap"

	"github.com/stoik/persuasion-gateway/internal/domain"
	"github.com/stoik/persuasion-gateway/internal/domain/banner"
	"github.com/stoik/persuasion-gateway/internal/domain/detection"
	"github.com/stoik/persuasion-gateway/internal/domain/signals"
	"github.com/stoik/persuasion-gateway/internal/ports"
)

// Trace header names written on every forwarded message
const (
	HeaderGateway = "X-Persuasion-Gateway"
	HeaderRisk    = "X-Persuasion-Risk"
	HeaderScore   = "X-Persuasion-Score"
	HeaderTactics = "X-Persuasion-Tactics"
	HeaderRules   = "X-Persuasion-Rules"
	HeaderBanner  = "X-Persuasion-Banner"
	HeaderSignals = "X-Persuasion-Signals"

	maxHeaderValue = 900
	subjectPrefix  = "[Potential phishing:"
)

// Policy controls where and when annotations are applied
type Policy struct {
	// GatewayName is the value of the loop-prevention header
	GatewayName string

	// TagSubject enables the "[Potential phishing: <Tactic>]" subject prefix
	// for verdicts at or above SubjectPrefixLevel
	TagSubject         bool
	SubjectPrefixLevel domain.RiskLevel

	// BannerMinLevel is the lowest level for which banners are inserted
	// into the message body. Trace headers are always written.
	BannerMinLevel domain.RiskLevel
}

// DefaultPolicy tags Low and above and always inserts the banner
func DefaultPolicy() Policy {
	return Policy{
		GatewayName:        "persuasion-gateway",
		TagSubject:         true,
		SubjectPrefixLevel: domain.RiskLow,
		BannerMinLevel:     domain.RiskNone,
	}
}

// GatewayService receives raw messages from the transport, annotates them
// and forwards them downstream
type GatewayService struct {
	detector *detection.Detector
	evidence ports.EvidenceStore
	relay    ports.Relay
	signals  []signals.Strategy
	metrics  ports.Metrics
	logger   *zap.SugaredLogger
	policy   Policy
}

// NewGatewayService creates a new gateway service with dependency injection.
// evidence, relay and metrics may be nil.
func NewGatewayService(
	detector *detection.Detector,
	evidence ports.EvidenceStore,
	relay ports.Relay,
	strategies []signals.Strategy,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
	policy Policy,
) *GatewayService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if policy.GatewayName == "" {
		policy.GatewayName = DefaultPolicy().GatewayName
	}
	return &GatewayService{
		detector: detector,
		evidence: evidence,
		relay:    relay,
		signals:  strategies,
		metrics:  metrics,
		logger:   logger,
		policy:   policy,
	}
}

// HandleMessage archives, annotates and forwards one inbound message.
//
// The decision is always accept: evidence and relay failures are logged and
// counted but never turned into a rejection.
func (s *GatewayService) HandleMessage(ctx context.Context, env domain.Envelope, raw []byte) domain.AnnotatedMessage {
	log := s.logger.With("envelope_id", env.ID.String(), "mail_from", env.MailFrom)

	if s.evidence != nil {
		ev := &domain.Evidence{Envelope: env, Subject: headerSubject(raw), Raw: raw}
		if err := s.evidence.SaveEvidence(ctx, ev); err != nil {
			log.Warnw("Failed to archive evidence", "error", err)
		}
	}

	annotated := s.Annotate(ctx, env, raw)

	if s.relay != nil {
		if err := s.relay.Deliver(ctx, env.MailFrom, env.RcptTo, annotated.Raw); err != nil {
			log.Errorw("Failed to relay message", "error", err, "rcpt_to", env.RcptTo)
			if s.metrics != nil {
				s.metrics.RecordRelayFailure(ctx)
			}
		} else {
			log.Debugw("Message relayed", "rcpt_count", len(env.RcptTo))
		}
	}

	return annotated
}

// Annotate evaluates a raw message and returns it with trace headers, subject
// tag and banners applied. It never fails: anything that prevents analysis
// yields a degraded verdict and the message is still returned for delivery.
func (s *GatewayService) Annotate(ctx context.Context, env domain.Envelope, raw []byte) (annotated domain.AnnotatedMessage) {
	start := time.Now()
	log := s.logger.With("envelope_id", env.ID.String())

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Annotation panicked, forwarding degraded", "panic", r)
			annotated = s.degraded(env, raw, "internal error")
		}
		if s.metrics != nil {
			s.metrics.RecordMessage(ctx, annotated.Verdict, time.Since(start))
		}
	}()

	parsed, err := parseMessage(raw)
	if err != nil {
		log.Warnw("Message could not be parsed", "error", err)
		return s.degraded(env, raw, "message could not be parsed")
	}

	if parsed.header.Has(HeaderGateway) {
		log.Infow("Message already annotated, forwarding unchanged")
		return domain.AnnotatedMessage{
			Envelope: env,
			Raw:      raw,
			Verdict:  domain.Verdict{Level: domain.RiskNone, Matches: []domain.Match{}, Tactics: []domain.TacticScore{}},
			Decision: domain.DecisionAccept,
			Skipped:  true,
		}
	}

	body := parsed.PlainText
	if parsed.plainPath == nil {
		body = signals.VisibleText(parsed.HTML)
	}

	verdict, err := s.detector.Evaluate(parsed.Subject, body)
	if err != nil {
		log.Warnw("Analysis degraded", "error", err)
		verdict = domain.DegradedVerdict(degradedReason(err))
	}

	found := signals.Collect(s.signals, signals.Message{
		From:      parsed.From,
		ReplyTo:   parsed.ReplyTo,
		PlainText: parsed.PlainText,
		HTML:      parsed.HTML,
	})

	out, err := rewriteMessage(raw, s.headerEditor(parsed.Subject, verdict, found), s.bodyEdits(parsed, verdict))
	if err != nil {
		log.Warnw("Message could not be rewritten, prepending headers", "error", err)
		out = prependHeaders(raw, s.traceHeaders(verdict, found))
	}

	log.Infow("Message annotated",
		"risk", verdict.Level.String(),
		"score", verdict.Score,
		"rules", ruleIDs(verdict),
		"signals", len(found),
		"degraded", verdict.Degraded,
	)

	return domain.AnnotatedMessage{
		Envelope: env,
		Raw:      out,
		Verdict:  verdict,
		Banner:   banner.RenderText(verdict),
		Signals:  found,
		Decision: domain.DecisionAccept,
	}
}

// degraded annotates a message that could not be parsed: trace headers are
// prepended to the untouched raw bytes
func (s *GatewayService) degraded(env domain.Envelope, raw []byte, reason string) domain.AnnotatedMessage {
	verdict := domain.DegradedVerdict(reason)
	return domain.AnnotatedMessage{
		Envelope: env,
		Raw:      prependHeaders(raw, s.traceHeaders(verdict, nil)),
		Verdict:  verdict,
		Banner:   banner.RenderText(verdict),
		Signals:  []domain.Signal{},
		Decision: domain.DecisionAccept,
	}
}

type headerField struct {
	key   string
	value string
}

func (s *GatewayService) traceHeaders(v domain.Verdict, found []domain.Signal) []headerField {
	fields := []headerField{
		{HeaderGateway, s.policy.GatewayName},
		{HeaderRisk, v.Level.String()},
		{HeaderScore, strconv.Itoa(v.Score)},
		{HeaderTactics, formatTactics(v)},
		{HeaderRules, formatRules(v)},
		{HeaderBanner, banner.RenderHeader(v)},
	}
	if len(found) > 0 {
		fields = append(fields, headerField{HeaderSignals, formatSignals(found)})
	}
	for i := range fields {
		fields[i].value = truncate(headerSafe(fields[i].value), maxHeaderValue)
	}
	return fields
}

func (s *GatewayService) headerEditor(subject string, v domain.Verdict, found []domain.Signal) func(h *message.Header) {
	return func(h *message.Header) {
		for _, f := range s.traceHeaders(v, found) {
			h.Set(f.key, f.value)
		}

		if tagged, ok := s.taggedSubject(subject, v); ok {
			h.SetText("Subject", tagged)
		}
	}
}

func (s *GatewayService) taggedSubject(subject string, v domain.Verdict) (string, bool) {
	if !s.policy.TagSubject || v.Degraded || v.Level == domain.RiskNone || v.Level < s.policy.SubjectPrefixLevel {
		return "", false
	}
	if strings.HasPrefix(strings.TrimSpace(subject), subjectPrefix) {
		return "", false
	}
	tactic, ok := v.PrimaryTactic()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s %s] %s", subjectPrefix, tactic.Label(), subject), true
}

func (s *GatewayService) bodyEdits(p *parsedMessage, v domain.Verdict) map[string]bodyEdit {
	edits := map[string]bodyEdit{}
	if v.Level < s.policy.BannerMinLevel {
		return edits
	}

	if p.plainPath != nil {
		text := banner.RenderText(v)
		edits[pathKey(p.plainPath)] = func(body string) string {
			return text + "\n" + body
		}
	}
	if p.htmlPath != nil {
		fragment := banner.RenderHTML(v)
		edits[pathKey(p.htmlPath)] = func(body string) string {
			return insertAfterBodyTag(body, fragment)
		}
	}
	return edits
}

func formatTactics(v domain.Verdict) string {
	detected := v.DetectedTactics()
	if len(detected) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(detected))
	for _, ts := range detected {
		parts = append(parts, ts.Tactic.Label()+"="+strconv.Itoa(ts.Score))
	}
	return strings.Join(parts, ", ")
}

func formatRules(v domain.Verdict) string {
	if len(v.Matches) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(v.Matches))
	for _, m := range v.Matches {
		parts = append(parts, fmt.Sprintf("%s:%s:%d", m.RuleID, m.Field, m.Weight))
	}
	return strings.Join(parts, ", ")
}

func formatSignals(found []domain.Signal) string {
	parts := make([]string, 0, len(found))
	for _, sig := range found {
		parts = append(parts, fmt.Sprintf("%s:%d:%s", sig.ID, sig.Weight, sig.Detail))
	}
	return strings.Join(parts, ", ")
}

func ruleIDs(v domain.Verdict) []string {
	ids := make([]string, 0, len(v.Matches))
	for _, m := range v.Matches {
		ids = append(ids, m.RuleID)
	}
	return ids
}

func degradedReason(err error) string {
	var degraded *domain.AnalysisDegradedError
	if errors.As(err, &degraded) {
		return degraded.Reason
	}
	return "analysis failed"
}

// headerSafe drops anything that could end a header line or is not printable ASCII
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// truncate cuts s to at most n bytes, preferring a space boundary so
// RFC 2047 encoded words stay whole
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimRight(cut, " ,")
}

func prependHeaders(raw []byte, fields []headerField) []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		buf.WriteString(f.key)
		buf.WriteString(": ")
		buf.WriteString(f.value)
		buf.WriteString("\r\n")
	}
	buf.Write(raw)
	return buf.Bytes()
}
