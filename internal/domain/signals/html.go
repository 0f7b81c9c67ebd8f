package signals

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// VisibleText returns the human-visible text of an HTML document with
// whitespace collapsed. Script and style contents are skipped and entities
// are decoded.
func VisibleText(doc string) string {
	if doc == "" {
		return ""
	}

	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if isHidden(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHidden(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(tagName []byte) bool {
	switch atom.Lookup(tagName) {
	case atom.Script, atom.Style, atom.Head, atom.Title:
		return true
	}
	return false
}

// anchor is an <a> element: its href and its visible text
type anchor struct {
	href string
	text string
}

// anchors returns up to limit anchors in document order
func anchors(doc string, limit int) []anchor {
	var (
		found   []anchor
		current *anchor
		text    strings.Builder
	)

	z := html.NewTokenizer(strings.NewReader(doc))
	for len(found) < limit {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return found
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if atom.Lookup(name) != atom.A {
				continue
			}
			current = &anchor{}
			text.Reset()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					current.href = string(val)
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != atom.A || current == nil {
				continue
			}
			current.text = strings.Join(strings.Fields(text.String()), " ")
			found = append(found, *current)
			current = nil
		case html.TextToken:
			if current != nil {
				text.Write(z.Text())
				text.WriteByte(' ')
			}
		}
	}
	return found
}
