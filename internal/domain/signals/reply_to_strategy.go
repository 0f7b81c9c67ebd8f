package signals

import (
	"github.com/stoik/persuasion-gateway/internal/domain"
)

const (
	SignalReplyToMismatch = "SIG_REPLYTO_MISMATCH"
)

// ReplyToStrategy reports a Reply-To header pointing to another domain than From
type ReplyToStrategy struct{}

// NewReplyToStrategy creates a new Reply-To mismatch strategy
func NewReplyToStrategy() *ReplyToStrategy {
	return &ReplyToStrategy{}
}

// Name returns the strategy name
func (s *ReplyToStrategy) Name() string {
	return "Reply-To Mismatch"
}

// Detect checks whether replies would leave the sender's domain
func (s *ReplyToStrategy) Detect(msg Message) *domain.Signal {
	fromDomain := extractDomain(msg.From)
	replyToDomain := extractDomain(msg.ReplyTo)

	if fromDomain == "" || replyToDomain == "" || fromDomain == replyToDomain {
		return nil
	}

	return &domain.Signal{
		ID:     SignalReplyToMismatch,
		Weight: 4,
		Detail: fromDomain + "->" + replyToDomain,
	}
}
