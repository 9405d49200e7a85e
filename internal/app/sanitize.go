package app

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Tags whose text content is dropped along with the tag.
var droppedContent = map[string]bool{
	"script":   true,
	"style":    true,
	"textarea": true,
	"option":   true,
}

// StripTags removes every tag, attribute and comment from raw and keeps the
// remaining text as written. Entities are left untouched.
func StripTags(raw string) string {
	if !strings.ContainsAny(raw, "<>") {
		return raw
	}
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return ""
			}
			return b.String()
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Raw())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if droppedContent[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if droppedContent[string(name)] && depth > 0 {
				depth--
			}
		}
	}
}
