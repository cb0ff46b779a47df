package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dhcgn/mbox-to-archive/model"
)

// textContent derives the plain text stored as the TextContent object. The
// plain body wins; an HTML-only message is reduced to its visible text.
func textContent(b model.Bodies) string {
	if strings.TrimSpace(b.Plain) != "" {
		return b.Plain
	}
	if b.HTML != "" {
		return htmlToText(b.HTML)
	}
	return ""
}

func htmlToText(htmlBody string) string {
	z := html.NewTokenizer(strings.NewReader(htmlBody))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Head:
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			t := strings.TrimSpace(string(z.Text()))
			if t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
	}
}
