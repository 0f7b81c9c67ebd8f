package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tactic is one of the persuasion categories detection rules are grouped by
type Tactic string

const (
	TacticUrgency   Tactic = "urgency"
	TacticFear      Tactic = "fear"
	TacticAuthority Tactic = "authority"
	TacticTrust     Tactic = "trust"
	TacticReward    Tactic = "reward"
)

// Tactics lists every known tactic in canonical order.
// Banners and per-tactic scores always follow this order.
var Tactics = []Tactic{TacticUrgency, TacticFear, TacticAuthority, TacticTrust, TacticReward}

var tacticInfo = map[Tactic]struct {
	label string
	tip   string
}{
	TacticUrgency:   {"Urgency", "Look for deadlines and pressure to act quickly."},
	TacticFear:      {"Fear", "Look for threats (account locked, investigation, harm) that push compliance."},
	TacticAuthority: {"Authority", "Look for impersonation of official bodies and 'policy/compliance' language."},
	TacticTrust:     {"Trust", "Look for familiar tone and routine prompts that lower suspicion."},
	TacticReward:    {"Reward", "Look for unexpected refunds, prizes, or 'money owed to you' claims."},
}

// ParseTactic resolves a tactic name case-insensitively
func ParseTactic(s string) (Tactic, error) {
	t := Tactic(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tacticInfo[t]; !ok {
		return "", fmt.Errorf("unknown tactic %q", s)
	}
	return t, nil
}

// Valid reports whether t belongs to the closed tactic set
func (t Tactic) Valid() bool {
	_, ok := tacticInfo[t]
	return ok
}

// Label returns the display name of the tactic
func (t Tactic) Label() string {
	if info, ok := tacticInfo[t]; ok {
		return info.label
	}
	return string(t)
}

// Tip returns the "what to look for" advice shown in banners
func (t Tactic) Tip() string {
	return tacticInfo[t].tip
}

// Rank is the position of the tactic in canonical order
func (t Tactic) Rank() int {
	for i, known := range Tactics {
		if known == t {
			return i
		}
	}
	return len(Tactics)
}

// Field identifies which part of a message a rule is scanned against
type Field string

const (
	FieldSubject Field = "subject"
	FieldBody    Field = "body"
)

// Fields lists message fields in scan order
var Fields = []Field{FieldSubject, FieldBody}

// ParseField resolves a field name case-insensitively
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldSubject, FieldBody:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Rule is a single detection heuristic
type Rule struct {
	ID        string   `json:"id" yaml:"id"`
	Tactic    Tactic   `json:"tactic" yaml:"tactic"`
	Patterns  []string `json:"patterns" yaml:"patterns"`
	Weight    int      `json:"weight" yaml:"weight"`
	Rationale string   `json:"rationale" yaml:"rationale"`

	// Fields restricts the rule to part of the message. Empty means every field.
	Fields []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// AppliesTo reports whether the rule is scanned against field f
func (r Rule) AppliesTo(f Field) bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, scoped := range r.Fields {
		if scoped == f {
			return true
		}
	}
	return false
}

// Match records that a rule fired against a message
type Match struct {
	RuleID      string `json:"rule_id"`
	Tactic      Tactic `json:"tactic"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
	Field       Field  `json:"field"`
	Pattern     string `json:"pattern"`
	Offset      int    `json:"offset"` // rune offset in the normalized field text
}

// TacticScore is the sum of weights of the distinct rules of one tactic that matched
type TacticScore struct {
	Tactic Tactic   `json:"tactic"`
	Score  int      `json:"score"`
	Rules  []string `json:"rules,omitempty"`
}

// Verdict is the complete scoring outcome for one message
type Verdict struct {
	Level   RiskLevel     `json:"level"`
	Score   int           `json:"score"`
	Matches []Match       `json:"matches"`
	Tactics []TacticScore `json:"tactics"`

	// Degraded is set when the message could not be analyzed
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// DetectedTactics returns tactics with a positive score, in canonical order
func (v Verdict) DetectedTactics() []TacticScore {
	detected := make([]TacticScore, 0, len(v.Tactics))
	for _, ts := range v.Tactics {
		if ts.Score > 0 {
			detected = append(detected, ts)
		}
	}
	return detected
}

// PrimaryTactic picks the tactic used to tag the subject line.
// Trust is only chosen when it is the sole tactic detected.
func (v Verdict) PrimaryTactic() (Tactic, bool) {
	var best *TacticScore
	var trust *TacticScore
	detected := v.DetectedTactics()
	for i := range detected {
		ts := &detected[i]
		if ts.Tactic == TacticTrust {
			trust = ts
			continue
		}
		if best == nil || ts.Score > best.Score {
			best = ts
		}
	}
	if best != nil {
		return best.Tactic, true
	}
	if trust != nil {
		return trust.Tactic, true
	}
	return "", false
}

// DegradedVerdict is returned when a message could not be analyzed.
// It carries the lowest risk level so delivery is never blocked.
func DegradedVerdict(reason string) Verdict {
	return Verdict{
		Level:          RiskNone,
		Matches:        []Match{},
		Tactics:        []TacticScore{},
		Degraded:       true,
		DegradedReason: reason,
	}
}

// Envelope is the SMTP envelope metadata delivered by the transport
type Envelope struct {
	ID         uuid.UUID `json:"id"`
	MailFrom   string    `json:"mail_from"`
	RcptTo     []string  `json:"rcpt_to"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEnvelope creates an envelope with a fresh identifier
func NewEnvelope(from string, to []string) Envelope {
	return Envelope{
		ID:         uuid.New(),
		MailFrom:   from,
		RcptTo:     to,
		ReceivedAt: time.Now().UTC(),
	}
}

// Evidence is a raw copy of an inbound message, archived before analysis
type Evidence struct {
	Envelope Envelope `json:"envelope"`
	Subject  string   `json:"subject"`
	Raw      []byte   `json:"-"`
}

// Signal is an informational structural observation about a message.
// Signals are reported alongside the verdict but never change it.
type Signal struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
	Detail string `json:"detail"`
}

// Decision is the answer returned to the transport for one message
type Decision string

const (
	// DecisionAccept is the only decision the gateway makes: annotate and forward
	DecisionAccept Decision = "accept"
)

// AnnotatedMessage is the message handed to the downstream transport
type AnnotatedMessage struct {
	Envelope Envelope `json:"envelope"`
	Raw      []byte   `json:"-"`
	Verdict  Verdict  `json:"verdict"`
	Banner   string   `json:"banner"`
	Signals  []Signal `json:"signals,omitempty"`
	Decision Decision `json:"decision"`

	// Skipped is set when the message was already annotated by a gateway
	Skipped bool `json:"skipped,omitempty"`
}
