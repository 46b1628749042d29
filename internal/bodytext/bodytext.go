// Package bodytext reduces message bodies, which may be HTML or plain text,
// to single-line plain text for transcripts and listing previews.
package bodytext

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// EmptyPreview is shown for a body with no visible text.
const EmptyPreview = "<No content>"

// DefaultPreviewLength is the preview length used by mailbox listings.
const DefaultPreviewLength = 120

// skipElements are elements whose text content is discarded.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// blockElements separate their content from neighbouring text.
var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "blockquote": true,
	"pre": true, "table": true, "tr": true, "td": true, "th": true,
	"section": true, "article": true, "header": true, "footer": true,
	"br": true, "hr": true,
}

// PlainText returns the visible text of body with all whitespace runs
// collapsed to a single space. Bodies without markup pass through the same
// tokenizer, so entities are decoded either way.
func PlainText(body string) string {
	var w textWriter
	z := html.NewTokenizer(strings.NewReader(body))
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return w.String()

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			name := string(tn)
			if skipElements[name] {
				skipDepth++
				continue
			}
			if blockElements[name] {
				w.space()
			}
			if name == "img" && hasAttr {
				for {
					key, val, more := z.TagAttr()
					if string(key) == "alt" {
						w.text(string(val))
					}
					if !more {
						break
					}
				}
			}

		case html.EndTagToken:
			tn, _ := z.TagName()
			name := string(tn)
			if skipElements[name] && skipDepth > 0 {
				skipDepth--
				continue
			}
			if blockElements[name] {
				w.space()
			}

		case html.TextToken:
			if skipDepth == 0 {
				w.text(string(z.Text()))
			}
		}
	}
}

// Preview returns at most maxLength runes of the plain text of body. Longer
// text is cut and ends in an ellipsis. An empty result becomes EmptyPreview.
func Preview(body string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultPreviewLength
	}

	text := PlainText(body)
	if text == "" {
		return EmptyPreview
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	runes := []rune(text)
	return string(runes[:maxLength-1]) + "…"
}

// textWriter accumulates words separated by single spaces.
type textWriter struct {
	b       strings.Builder
	pending bool
}

func (w *textWriter) space() {
	if w.b.Len() > 0 {
		w.pending = true
	}
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if isSpace(s[0]) {
		w.space()
	}
	for i, word := range strings.Fields(s) {
		if i > 0 {
			w.space()
		}
		if w.pending {
			w.b.WriteByte(' ')
			w.pending = false
		}
		w.b.WriteString(word)
	}
	if isSpace(s[len(s)-1]) {
		w.space()
	}
}

func (w *textWriter) String() string {
	return w.b.String()
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
