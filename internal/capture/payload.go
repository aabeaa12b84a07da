package capture

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const snippetLen = 120

// describePayload summarizes a non-JSON body for the run log. Anti-bot
// challenges come back as HTML, so their <title> is the useful part.
func describePayload(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "empty body"
	}
	if trimmed[0] == '<' {
		if title := htmlTitle(trimmed); title != "" {
			return fmt.Sprintf("HTML page %q", title)
		}
		return "HTML page without title"
	}
	return fmt.Sprintf("body starts with %q", snippet(trimmed))
}

func htmlTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var title string
	var find func(*html.Node)
	find = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			title = strings.Join(strings.Fields(sb.String()), " ")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	return title
}

func snippet(b []byte) string {
	if len(b) <= snippetLen {
		return string(b)
	}
	cut := b[:snippetLen]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "..."
}
