package signals

import (
	"fmt"
	"strings"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

const (
	SignalHasURL   = "SIG_HAS_URL"
	SignalTwoURLs  = "SIG_TWO_URLS"
	SignalManyURLs = "SIG_MANY_URLS"
)

// URLVolumeStrategy reports how many links a message carries
type URLVolumeStrategy struct{}

// NewURLVolumeStrategy creates a new URL volume strategy
func NewURLVolumeStrategy() *URLVolumeStrategy {
	return &URLVolumeStrategy{}
}

// Name returns the strategy name
func (s *URLVolumeStrategy) Name() string {
	return "URL Volume"
}

// Detect counts URLs in the plain text and in the visible HTML text
func (s *URLVolumeStrategy) Detect(msg Message) *domain.Signal {
	combined := strings.TrimSpace(msg.PlainText + " " + VisibleText(msg.HTML))
	n := len(urlRegex.FindAllString(combined, -1))

	switch {
	case n >= 3:
		return &domain.Signal{ID: SignalManyURLs, Weight: 2, Detail: fmt.Sprintf("urls=%d", n)}
	case n == 2:
		return &domain.Signal{ID: SignalTwoURLs, Weight: 1, Detail: "urls=2"}
	case n == 1:
		return &domain.Signal{ID: SignalHasURL, Weight: 1, Detail: "urls=1"}
	}
	return nil
}
