package transcript

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skipTags hold no conversation text.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true, "template": true,
}

// HTMLText returns the visible text of an HTML export. Block elements end
// in a blank line so the result splits into paragraphs like markdown.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}

		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "pre", "blockquote", "tr", "section", "article":
				sb.WriteString("\n\n")
			}
		}
	}
	extract(doc)

	// Collapse runs of blank lines and trailing spaces left by the walk.
	var paras []string
	for _, p := range strings.Split(sb.String(), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n"), nil
}
