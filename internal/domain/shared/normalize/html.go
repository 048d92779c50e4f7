package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	multiSpaceRe   = regexp.MustCompile(`[ \t\f\v]{2,}`)
	spaceNewlineRe = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	manyNewlinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanDescription turns supplier HTML into plain text. Entities are decoded,
// script and style bodies dropped, <br>/<ul> become line breaks, <li> becomes
// a bullet, and every attribute (inline handlers and styles included) is
// discarded. Spaces collapse and at most one blank line is kept.
func CleanDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	// Feeds frequently double-escape markup inside CDATA.
	if !strings.Contains(raw, "<") && strings.Contains(raw, "&lt;") {
		raw = html.UnescapeString(raw)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.WriteString(strings.ReplaceAll(tok.Data, "\u00a0", " "))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Br, atom.Ul, atom.Ol:
				b.WriteString("\n")
			case atom.Li:
				b.WriteString("• ")
			}
		case html.EndTagToken:
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			case atom.Li, atom.P, atom.Div, atom.Tr,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteString("\n")
			}
		}
	}

	s := strings.ReplaceAll(b.String(), "\r\n", "\n")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = spaceNewlineRe.ReplaceAllString(s, "\n")
	s = manyNewlinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
