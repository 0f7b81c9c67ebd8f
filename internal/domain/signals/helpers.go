package signals

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	urlRegex   = regexp.MustCompile(`(?i)https?://[^\s<>"]+|www\.[^\s<>"]+`)

	// hostname-looking tokens, e.g. "microsoft.com" or "login.example.co.uk"
	hostRegex = regexp.MustCompile(`\b[a-z0-9.-]+\.[a-z]{2,}\b`)
)

// extractDomain returns the domain of the first address found in a header
// value such as "Name <user@domain.com>", or "" when there is none
func extractDomain(headerValue string) string {
	addr := emailRegex.FindString(headerValue)
	if addr == "" {
		return ""
	}
	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}
