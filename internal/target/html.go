package target

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
)

// HTML parses the text into a document tree that replaces the active document.
type HTML struct{}

func NewHTML() *HTML { return &HTML{} }

func (h *HTML) Kind() string { return KindHTML }

func (h *HTML) Materialize(_ context.Context, text string) (hooks.Environment, error) {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &HTMLEnv{doc: doc, source: text}, nil
}

// HTMLEnv is a parsed document.
type HTMLEnv struct {
	doc    *html.Node
	source string
}

func (e *HTMLEnv) Target() string { return KindHTML }
func (e *HTMLEnv) Source() string { return e.source }

// Document returns the root node.
func (e *HTMLEnv) Document() *html.Node { return e.doc }

// Title returns the text of the first <title> element.
func (e *HTMLEnv) Title() string {
	if n := e.find(func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "title" }); n != nil {
		return strings.TrimSpace(textContent(n))
	}
	return ""
}

// ElementByID returns the element with the given id attribute, if any.
func (e *HTMLEnv) ElementByID(id string) *html.Node {
	return e.find(func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return true
			}
		}
		return false
	})
}

func (e *HTMLEnv) find(match func(*html.Node) bool) *html.Node {
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if match(n) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(e.doc)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
