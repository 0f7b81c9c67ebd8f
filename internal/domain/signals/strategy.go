// Package signals extracts structural observations about a message that are
// reported next to the persuasion verdict. Signals never change the score or
// the risk level.
package signals

import (
	"github.com/stoik/persuasion-gateway/internal/domain"
)

// Strategy defines the interface that all signal extractors implement
//
// Each strategy looks at one structural aspect of the message and returns a
// Signal when it observes something worth reporting, nil otherwise.
type Strategy interface {
	// Detect inspects a message and returns a Signal, or nil
	Detect(msg Message) *domain.Signal

	// Name returns the human-readable name of this strategy
	Name() string
}

// Message is the view of an email that signal strategies work on
type Message struct {
	// From and ReplyTo are raw header values, e.g. "Name <user@domain.com>"
	From    string
	ReplyTo string

	PlainText string
	HTML      string
}

// DefaultStrategies returns the built-in strategies in reporting order
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewReplyToStrategy(),
		NewURLVolumeStrategy(),
		NewLinkTextStrategy(),
	}
}

// Collect runs every strategy against msg and returns the signals found, in
// strategy order. The result is never nil.
func Collect(strategies []Strategy, msg Message) []domain.Signal {
	found := make([]domain.Signal, 0, len(strategies))
	for _, s := range strategies {
		if sig := s.Detect(msg); sig != nil {
			found = append(found, *sig)
		}
	}
	return found
}
