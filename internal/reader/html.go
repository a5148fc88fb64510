package reader

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the text extracted from a chapter page.
type Page struct {
	Title   string
	Content string
}

type selector func(n *html.Node) bool

func byID(id string) selector {
	return func(n *html.Node) bool { return attr(n, "id") == id }
}

func byClass(class string) selector {
	return func(n *html.Node) bool { return attr(n, "class") == class }
}

func byTag(a atom.Atom) selector {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

// contentSelectors are tried in order; the first match wins.
var contentSelectors = []selector{
	byID("content"),
	byClass("content"),
	byTag(atom.Article),
	byClass("chapter-content"),
	byClass("novel-content"),
	byID("chaptercontent"),
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

var skippedTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
}

var (
	lineSpaces = regexp.MustCompile(`[ \t\x{00a0}\x{3000}]+\n`)
	manyBreaks = regexp.MustCompile(`\n{3,}`)
)

// ParsePage extracts the chapter title and body text from an HTML page.
func ParsePage(r io.Reader) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &Page{Title: untitled}
	if t := find(root, byTag(atom.Title)); t != nil {
		page.Title = cleanTitle(text(t))
	}

	var content *html.Node
	for _, sel := range contentSelectors {
		if content = find(root, sel); content != nil {
			break
		}
	}
	if content == nil {
		content = find(root, byTag(atom.Body))
	}
	if content != nil {
		page.Content = tidy(text(content))
	}
	return page, nil
}

func attr(n *html.Node, key string) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// find is a depth-first search in document order.
func find(n *html.Node, match selector) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedTags[n.DataAtom] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && n.DataAtom != atom.Br {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return b.String()
}

func tidy(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = lineSpaces.ReplaceAllString(s, "\n")
	s = manyBreaks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
