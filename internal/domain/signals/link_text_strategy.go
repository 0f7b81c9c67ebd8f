package signals

import (
	"strings"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

const (
	SignalLinkTextMismatch = "SIG_LINKTEXT_MISMATCH"

	maxAnchors = 15
)

// LinkTextStrategy reports a link whose visible text names a domain that the
// link does not actually point to, e.g. <a href="http://evil.io">paypal.com</a>
type LinkTextStrategy struct{}

// NewLinkTextStrategy creates a new link text mismatch strategy
func NewLinkTextStrategy() *LinkTextStrategy {
	return &LinkTextStrategy{}
}

// Name returns the strategy name
func (s *LinkTextStrategy) Name() string {
	return "Link Text Mismatch"
}

// Detect checks the first anchors of the HTML body and stops at the first mismatch
func (s *LinkTextStrategy) Detect(msg Message) *domain.Signal {
	if msg.HTML == "" {
		return nil
	}

	for _, a := range anchors(msg.HTML, maxAnchors) {
		visible := hostRegex.FindAllString(strings.ToLower(a.text), -1)
		if len(visible) == 0 {
			continue
		}

		href := strings.ToLower(a.href)
		pointsToVisible := false
		for _, host := range visible {
			if strings.Contains(href, strings.TrimPrefix(host, "www.")) {
				pointsToVisible = true
				break
			}
		}
		if !pointsToVisible {
			return &domain.Signal{
				ID:     SignalLinkTextMismatch,
				Weight: 3,
				Detail: "visible=" + visible[0],
			}
		}
	}

	return nil
}
