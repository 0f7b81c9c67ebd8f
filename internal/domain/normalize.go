package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// keptPunctuation survives normalization because it carries meaning in
// addresses, URLs and hyphenated words
const keptPunctuation = "@:/.-"

// Normalize applies the matching transformation to text:
//
//  1. reject invalid UTF-8
//  2. NFKC (folds full-width letters, ligatures, compatibility forms)
//  3. lower-case
//  4. drop format runes (zero-width spaces and joiners, soft hyphens)
//  5. replace every rune other than letters, digits, marks, '_', whitespace
//     and keptPunctuation with a space
//  6. collapse whitespace runs to a single space and trim
//
// Patterns and message text go through the same function, so "Final-Notice!"
// and "final-notice" compare equal while line breaks inside a phrase never
// cause a miss.
func Normalize(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", &AnalysisDegradedError{Reason: "text is not valid UTF-8"}
	}

	text = strings.ToLower(norm.NFKC.String(text))

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cf, r):
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_',
			strings.ContainsRune(keptPunctuation, r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		default:
			pendingSpace = true
		}
	}
	return b.String(), nil
}
