package application

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/net/html"
)

// parsedMessage is what the first pass over a raw message extracts
type parsedMessage struct {
	header message.Header

	Subject string
	From    string
	ReplyTo string

	PlainText string
	HTML      string

	// part paths of the first inline text/plain and text/html leaves,
	// nil when the message has none
	plainPath []int
	htmlPath  []int
}

// parseMessage decodes a raw RFC 5322 message. Transfer encodings and
// charsets are decoded; an unknown charset or encoding is an error.
func parseMessage(raw []byte) (*parsedMessage, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, describeReadError(err)
	}

	p := &parsedMessage{header: e.Header}

	if p.Subject, err = e.Header.Text("Subject"); err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	p.From = addressText(e.Header, "From")
	p.ReplyTo = addressText(e.Header, "Reply-To")

	err = walkEntity(e, nil, func(path []int, leaf *message.Entity) error {
		mediaType, inline := leafKind(leaf.Header)
		if !inline {
			return nil
		}
		switch {
		case mediaType == "text/plain" && p.plainPath == nil:
			body, err := io.ReadAll(leaf.Body)
			if err != nil {
				return fmt.Errorf("read text part: %w", err)
			}
			p.PlainText = string(body)
			p.plainPath = clonePath(path)
		case mediaType == "text/html" && p.htmlPath == nil:
			body, err := io.ReadAll(leaf.Body)
			if err != nil {
				return fmt.Errorf("read html part: %w", err)
			}
			p.HTML = string(body)
			p.htmlPath = clonePath(path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// headerSubject decodes only the header block, so it also works on messages
// whose body cannot be parsed. It returns "" on failure.
func headerSubject(raw []byte) string {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return ""
	}
	h := message.Header{Header: th}
	subject, err := h.Text("Subject")
	if err != nil {
		return h.Get("Subject")
	}
	return subject
}

func describeReadError(err error) error {
	switch {
	case message.IsUnknownCharset(err):
		return fmt.Errorf("unknown charset: %w", err)
	case message.IsUnknownEncoding(err):
		return fmt.Errorf("unknown transfer encoding: %w", err)
	}
	return fmt.Errorf("malformed message: %w", err)
}

// walkEntity calls visit for every leaf entity, depth first, in document order
func walkEntity(e *message.Entity, path []int, visit func(path []int, leaf *message.Entity) error) error {
	mr := e.MultipartReader()
	if mr == nil {
		return visit(path, e)
	}

	for i := 0; ; i++ {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return describeReadError(err)
		}
		if err := walkEntity(part, append(clonePath(path), i), visit); err != nil {
			return err
		}
	}
}

// leafKind returns the media type of a leaf and whether it is shown inline.
// A missing Content-Type means text/plain.
func leafKind(h message.Header) (string, bool) {
	mediaType, _, err := h.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	disposition, _, _ := h.ContentDisposition()
	return strings.ToLower(mediaType), !strings.EqualFold(disposition, "attachment")
}

func addressText(h message.Header, key string) string {
	mh := mail.Header{Header: h}
	if addrs, err := mh.AddressList(key); err == nil && len(addrs) > 0 {
		return addrs[0].String()
	}
	value, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return value
}

func clonePath(path []int) []int {
	return append([]int{}, path...)
}

func pathKey(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return "/" + strings.Join(parts, "/")
}

// bodyEdit rewrites the decoded UTF-8 text of one leaf
type bodyEdit func(text string) string

// rewriteMessage re-serializes raw with a modified top-level header and with
// the leaves listed in edits (keyed by pathKey) rewritten. Edited leaves are
// written back as UTF-8 quoted-printable. Other text leaves keep their
// transfer encoding but are relabelled utf-8, the charset they were decoded to.
func rewriteMessage(raw []byte, editHeader func(h *message.Header), edits map[string]bodyEdit) ([]byte, error) {
	if len(edits) == 0 {
		return rewriteHeaderOnly(raw, editHeader)
	}

	e, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, describeReadError(err)
	}

	h := e.Header.Copy()
	editHeader(&h)
	if !h.Has("Mime-Version") {
		h.Set("MIME-Version", "1.0")
	}

	var buf bytes.Buffer
	if err := writeEntity(&buf, nil, e, h, nil, edits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rewriteHeaderOnly replaces the header and copies the body bytes untouched
func rewriteHeaderOnly(raw []byte, editHeader func(h *message.Header)) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	th, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("malformed header: %w", err)
	}

	h := message.Header{Header: th}
	editHeader(&h)

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h.Header); err != nil {
		return nil, err
	}
	if _, err := br.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntity(dst io.Writer, parent *message.Writer, e *message.Entity, h message.Header, path []int, edits map[string]bodyEdit) error {
	mr := e.MultipartReader()

	var body []byte
	if mr == nil {
		var err error
		if body, err = io.ReadAll(e.Body); err != nil {
			return fmt.Errorf("read part %s: %w", pathKey(path), err)
		}

		mediaType, params, _ := h.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		if params == nil {
			params = map[string]string{}
		}

		if edit, ok := edits[pathKey(path)]; ok {
			body = []byte(edit(string(body)))
			params["charset"] = "utf-8"
			h.SetContentType(mediaType, params)
			h.Set("Content-Transfer-Encoding", "quoted-printable")
		} else if _, hasCharset := params["charset"]; hasCharset && strings.HasPrefix(mediaType, "text/") {
			params["charset"] = "utf-8"
			h.SetContentType(mediaType, params)
		}
	}

	var (
		w   *message.Writer
		err error
	)
	if parent != nil {
		w, err = parent.CreatePart(h)
	} else {
		w, err = message.CreateWriter(dst, h)
	}
	if err != nil {
		return fmt.Errorf("write part %s: %w", pathKey(path), err)
	}

	if mr != nil {
		for i := 0; ; i++ {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return describeReadError(err)
			}
			child := part.Header.Copy()
			if err := writeEntity(nil, w, part, child, append(clonePath(path), i), edits); err != nil {
				return err
			}
		}
	} else if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write part %s: %w", pathKey(path), err)
	}

	return w.Close()
}

// insertAfterBodyTag places fragment right after the opening <body> tag, or
// at the start of the document when there is none. Offsets come from the raw
// token bytes so the original document is never re-cased or re-encoded.
func insertAfterBodyTag(doc, fragment string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return fragment + doc
		}
		offset += len(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		if name, _ := z.TagName(); string(name) == "body" {
			return doc[:offset] + fragment + doc[offset:]
		}
	}
}
