package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractPage reduces an HTML document to a title and readable text in a
// single walk. Page chrome and machine content are dropped, block
// boundaries become blank lines, and list items keep a marker so the
// structure survives flattening into plain text.
func extractPage(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", ""
	}
	w := &textWalker{}
	w.walk(doc)
	return w.title, strings.TrimSpace(w.out.String())
}

// dropped elements never contribute text: scripts and styles are code,
// the rest is chrome around the content.
func dropped(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template,
		atom.Iframe, atom.Svg, atom.Canvas, atom.Object,
		atom.Nav, atom.Header, atom.Footer, atom.Aside,
		atom.Form, atom.Button, atom.Select, atom.Dialog:
		return true
	}
	return false
}

// block reports whether an element starts a new paragraph in the output.
func block(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Table, atom.Tr,
		atom.Ul, atom.Ol, atom.Dl, atom.Dt, atom.Dd,
		atom.Figure, atom.Figcaption, atom.Details, atom.Summary,
		atom.Hr, atom.Address:
		return true
	}
	return false
}

// textWalker accumulates readable text during a DOM walk. Separators are
// buffered and written lazily with the next run of text, which collapses
// blank-line runs and avoids a whitespace cleanup pass afterwards.
type textWalker struct {
	out    strings.Builder
	title  string
	sep    string
	marker string
}

func (w *textWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.write(n.Data)
		return
	case html.ElementNode:
		switch {
		case n.DataAtom == atom.Title:
			if w.title == "" {
				w.title = strings.Join(strings.Fields(plainText(n)), " ")
			}
			return
		case dropped(n.DataAtom):
			return
		case block(n.DataAtom):
			w.breakParagraph()
		case n.DataAtom == atom.Li:
			w.breakLine()
			w.marker = "- "
		case n.DataAtom == atom.Br:
			w.breakLine()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode {
		if block(n.DataAtom) {
			w.breakParagraph()
		} else if n.DataAtom == atom.Li {
			w.breakLine()
		}
	}
}

// write appends one text node, collapsing its internal whitespace and
// flushing any pending separator and list marker first.
func (w *textWalker) write(data string) {
	words := strings.Fields(data)
	if len(words) == 0 {
		return
	}
	if w.out.Len() > 0 {
		w.out.WriteString(w.sep)
	}
	w.out.WriteString(w.marker)
	w.marker = ""
	w.out.WriteString(strings.Join(words, " "))
	w.sep = " "
}

func (w *textWalker) breakLine() {
	if w.sep != "\n\n" {
		w.sep = "\n"
	}
}

func (w *textWalker) breakParagraph() {
	w.sep = "\n\n"
	w.marker = ""
}

func plainText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(plainText(c))
	}
	return b.String()
}
